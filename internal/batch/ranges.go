package batch

import "time"

// Policy selects how a historical span is partitioned into load batches.
type Policy string

const (
	PolicyMonthly   Policy = "monthly"
	PolicyDaily     Policy = "daily"
	PolicyFixedDays Policy = "fixed"
)

// DefaultBatchDays is the batch length used by PolicyFixedDays when the
// service config does not override it.
const DefaultBatchDays = 10

// DateRange is an inclusive calendar window. Start and End are date-granular;
// time-of-day components are ignored by the partitioning functions.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days covered by the range.
func (r DateRange) Days() int {
	return int(truncateDay(r.End).Sub(truncateDay(r.Start)).Hours()/24) + 1
}

// Plan partitions [start, end] according to policy. batchDays only applies to
// PolicyFixedDays; values below 1 fall back to DefaultBatchDays.
func Plan(policy Policy, start, end time.Time, batchDays int) []DateRange {
	switch policy {
	case PolicyDaily:
		return DailyRanges(start, end)
	case PolicyFixedDays:
		return FixedRanges(start, end, batchDays)
	default:
		return MonthlyRanges(start, end)
	}
}

// MonthlyRanges splits [start, end] into calendar-month windows. The first
// window starts at start, the last one is clipped to end.
func MonthlyRanges(start, end time.Time) []DateRange {
	start, end = truncateDay(start), truncateDay(end)

	var ranges []DateRange
	current := start
	for !current.After(end) {
		nextMonth := time.Date(current.Year(), current.Month()+1, 1, 0, 0, 0, 0, current.Location())
		lastOfMonth := nextMonth.AddDate(0, 0, -1)

		batchEnd := lastOfMonth
		if batchEnd.After(end) {
			batchEnd = end
		}
		ranges = append(ranges, DateRange{Start: current, End: batchEnd})
		current = nextMonth
	}
	return ranges
}

// DailyRanges splits [start, end] into single-day windows (Start == End).
func DailyRanges(start, end time.Time) []DateRange {
	start, end = truncateDay(start), truncateDay(end)

	var ranges []DateRange
	for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
		ranges = append(ranges, DateRange{Start: current, End: current})
	}
	return ranges
}

// FixedRanges splits [start, end] into windows of batchDays days each, the
// last one clipped to end. Each window starts the day after the previous one
// ends.
func FixedRanges(start, end time.Time, batchDays int) []DateRange {
	if batchDays < 1 {
		batchDays = DefaultBatchDays
	}
	start, end = truncateDay(start), truncateDay(end)

	var ranges []DateRange
	current := start
	for !current.After(end) {
		batchEnd := current.AddDate(0, 0, batchDays-1)
		if batchEnd.After(end) {
			batchEnd = end
		}
		ranges = append(ranges, DateRange{Start: current, End: batchEnd})
		current = batchEnd.AddDate(0, 0, 1)
	}
	return ranges
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
