package internal

import "time"

// MaxWindowDays is the hard per-request limit of the paid-storage report API:
// dateTo - dateFrom must not exceed 7 days, i.e. 8 calendar days inclusive.
const MaxWindowDays = 8

// PlanWindows splits [from, to] into consecutive closed windows of at most
// MaxWindowDays each, chronologically ascending, contiguous and
// non-overlapping. from == to yields a single one-day window.
func PlanWindows(from, to time.Time) []Window {
	from = truncateToDay(from)
	to = truncateToDay(to)

	var out []Window
	for cur := from; !cur.After(to); {
		end := cur.AddDate(0, 0, MaxWindowDays-1)
		if end.After(to) {
			end = to
		}
		out = append(out, Window{From: cur, To: end})
		cur = end.AddDate(0, 0, 1)
	}
	return out
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
