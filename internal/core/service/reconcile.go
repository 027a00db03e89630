package service

import (
	"sort"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// Date reconciliation: a user may hold at most one transaction per calendar
// day. When a new or edited transaction claims an occupied day, the records
// on or after that day are displaced forward instead of the placement being
// rejected.

type dateMove struct {
	ID   string
	Date time.Time
}

// cascadeProbeBudget bounds the total day probes one reconcile call may
// spend before giving up with ErrDateConflict. Swappable for tests; real
// per-user record counts never get near it.
var cascadeProbeBudget = func(recordCount int) int {
	return 4*(recordCount+1) + 64
}

// reconcileDates computes the ordered moves that free the target day.
//
// records must contain every live transaction for the user dated on or after
// target, or within [target, previous] when a record is moving earlier, since
// displaced records never probe past the vacated previous day. previous is
// the record's old date
// when an existing record is being moved, zero otherwise; excludeID names the
// record being updated, which does not occupy its old slot.
//
// When a record moves to an earlier date (target < previous), only records
// dated within [target, previous] are displaced; otherwise every record
// dated on or after target is. Displaced records shift one day forward,
// probing further forward past days held by records that are not moving.
// Moves are emitted in ascending date order; each move's target day is
// checked against the evolving state so no two records land on the same day.
func reconcileDates(records []domain.Transaction, target time.Time, previous time.Time, excludeID string) ([]dateMove, error) {
	target = domain.Day(target)

	occupied := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.ID == excludeID {
			continue
		}
		occupied[domain.FormatDay(rec.Date)] = true
	}

	var window []domain.Transaction
	movingEarlier := !previous.IsZero() && target.Before(domain.Day(previous))
	for _, rec := range records {
		if rec.ID == excludeID {
			continue
		}
		if rec.Date.Before(target) {
			continue
		}
		if movingEarlier && rec.Date.After(domain.Day(previous)) {
			continue
		}
		window = append(window, rec)
	}
	if len(window) == 0 {
		return nil, nil
	}

	sort.Slice(window, func(i, j int) bool { return window[i].Date.Before(window[j].Date) })

	// Every record in the window moves at least one day, so none of them
	// occupies its old slot while new slots are probed.
	for _, rec := range window {
		delete(occupied, domain.FormatDay(rec.Date))
	}

	budget := cascadeProbeBudget(len(records))
	probes := 0

	moves := make([]dateMove, 0, len(window))
	for _, rec := range window {
		candidate := domain.NextDay(rec.Date)
		for {
			probes++
			if probes > budget {
				return nil, ErrDateConflict
			}
			if !occupied[domain.FormatDay(candidate)] {
				break
			}
			candidate = domain.NextDay(candidate)
		}
		occupied[domain.FormatDay(candidate)] = true
		moves = append(moves, dateMove{ID: rec.ID, Date: candidate})
	}

	return moves, nil
}
