package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

func day(s string) time.Time {
	d, err := domain.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func datedRecord(id, date string) domain.Transaction {
	return domain.Transaction{ID: id, UserID: "u1", Date: day(date)}
}

func TestReconcileDates_EmptyWindow(t *testing.T) {
	moves, err := reconcileDates(nil, day("2024-01-01"), time.Time{}, "")
	require.NoError(t, err)
	assert.Empty(t, moves)
}

func TestReconcileDates_InsertIntoOccupiedRun(t *testing.T) {
	records := []domain.Transaction{
		datedRecord("a", "2024-01-01"),
		datedRecord("b", "2024-01-02"),
	}

	moves, err := reconcileDates(records, day("2024-01-01"), time.Time{}, "")
	require.NoError(t, err)

	require.Len(t, moves, 2)
	assert.Equal(t, dateMove{ID: "a", Date: day("2024-01-02")}, moves[0])
	assert.Equal(t, dateMove{ID: "b", Date: day("2024-01-03")}, moves[1])
}

func TestReconcileDates_GapIsNotCompacted(t *testing.T) {
	records := []domain.Transaction{
		datedRecord("a", "2024-01-01"),
		datedRecord("c", "2024-01-10"),
	}

	moves, err := reconcileDates(records, day("2024-01-01"), time.Time{}, "")
	require.NoError(t, err)

	require.Len(t, moves, 2)
	assert.Equal(t, dateMove{ID: "a", Date: day("2024-01-02")}, moves[0])
	assert.Equal(t, dateMove{ID: "c", Date: day("2024-01-11")}, moves[1])
}

func TestReconcileDates_MoveEarlierShiftsOnlyTheSpan(t *testing.T) {
	// Record x moves from 01-05 back to 01-01; 01-01..01-04 are occupied by
	// others and each shifts forward one day. 01-10 is outside the span.
	records := []domain.Transaction{
		datedRecord("a", "2024-01-01"),
		datedRecord("b", "2024-01-02"),
		datedRecord("c", "2024-01-03"),
		datedRecord("d", "2024-01-04"),
		datedRecord("x", "2024-01-05"),
		datedRecord("z", "2024-01-10"),
	}

	moves, err := reconcileDates(records, day("2024-01-01"), day("2024-01-05"), "x")
	require.NoError(t, err)

	require.Len(t, moves, 4)
	assert.Equal(t, dateMove{ID: "a", Date: day("2024-01-02")}, moves[0])
	assert.Equal(t, dateMove{ID: "b", Date: day("2024-01-03")}, moves[1])
	assert.Equal(t, dateMove{ID: "c", Date: day("2024-01-04")}, moves[2])
	assert.Equal(t, dateMove{ID: "d", Date: day("2024-01-05")}, moves[3])
}

func TestReconcileDates_MoveLaterShiftsEverythingFromTarget(t *testing.T) {
	records := []domain.Transaction{
		datedRecord("x", "2024-01-01"),
		datedRecord("a", "2024-01-05"),
		datedRecord("b", "2024-01-06"),
	}

	// x moves from 01-01 to 01-05: not an earlier move, so the window is
	// every record on or after the target.
	moves, err := reconcileDates(records, day("2024-01-05"), day("2024-01-01"), "x")
	require.NoError(t, err)

	require.Len(t, moves, 2)
	assert.Equal(t, dateMove{ID: "a", Date: day("2024-01-06")}, moves[0])
	assert.Equal(t, dateMove{ID: "b", Date: day("2024-01-07")}, moves[1])
}

func TestReconcileDates_ExcludedRecordDoesNotOccupyItsSlot(t *testing.T) {
	records := []domain.Transaction{
		datedRecord("a", "2024-01-04"),
		datedRecord("x", "2024-01-05"),
	}

	moves, err := reconcileDates(records, day("2024-01-04"), day("2024-01-05"), "x")
	require.NoError(t, err)

	require.Len(t, moves, 1)
	assert.Equal(t, dateMove{ID: "a", Date: day("2024-01-05")}, moves[0])
}

func TestReconcileDates_NoTwoMovesShareADate(t *testing.T) {
	records := []domain.Transaction{
		datedRecord("a", "2024-01-01"),
		datedRecord("b", "2024-01-02"),
		datedRecord("c", "2024-01-03"),
		datedRecord("d", "2024-01-05"),
		datedRecord("e", "2024-01-06"),
	}

	moves, err := reconcileDates(records, day("2024-01-01"), time.Time{}, "")
	require.NoError(t, err)
	require.Len(t, moves, 5)

	seen := map[string]bool{domain.FormatDay(day("2024-01-01")): true}
	for _, mv := range moves {
		key := domain.FormatDay(mv.Date)
		assert.False(t, seen[key], "date %s assigned twice", key)
		seen[key] = true
	}
}

func TestReconcileDates_BudgetExhausted(t *testing.T) {
	restore := cascadeProbeBudget
	cascadeProbeBudget = func(int) int { return 0 }
	defer func() { cascadeProbeBudget = restore }()

	records := []domain.Transaction{datedRecord("a", "2024-01-01")}

	_, err := reconcileDates(records, day("2024-01-01"), time.Time{}, "")
	assert.ErrorIs(t, err, ErrDateConflict)
}
