package domain

import "time"

// Transaction dates are day-granular. Everything below keeps them pinned to
// UTC midnight so equality and map keys behave.

const DayFormat = "2006-01-02"

func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func NextDay(t time.Time) time.Time {
	return Day(t).AddDate(0, 0, 1)
}

func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayFormat, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

func FormatDay(t time.Time) string {
	return Day(t).Format(DayFormat)
}

func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}
