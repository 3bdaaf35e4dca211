package history

import "time"

// NormalizeRange clamps a requested range to what the export accepts. A
// missing or future end becomes now. A missing start, a start past the end,
// and every intraday request fall back to the lookback window, since the
// export keeps intraday data for only a few weeks. The result spans whole
// days: start floored to midnight, end pushed to the last microsecond of its
// day so same-day requests still cover the full session.
func NormalizeRange(start, end time.Time, interval string, lookback time.Duration, now time.Time) (time.Time, time.Time) {
	if end.IsZero() || end.After(now) {
		end = now
	}
	if start.IsZero() || start.After(end) || IsIntraday(interval) {
		start = end.Add(-lookback)
	}
	return floorDay(start), ceilDay(end)
}

func floorDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func ceilDay(t time.Time) time.Time {
	return floorDay(t).AddDate(0, 0, 1).Add(-time.Microsecond)
}
