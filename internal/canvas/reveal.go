package canvas

import "time"

// RevealLines returns the visible prefix of lines after elapsed time within a
// reveal window. Each line gets an equal slice of the window and its
// characters appear at a constant rate within that slice, so every line is
// complete once elapsed reaches window. Timing is integer-only so the same
// inputs always reveal the same text.
func RevealLines(lines []string, elapsed, window time.Duration) []string {
	n := len(lines)
	if n == 0 || elapsed <= 0 {
		return nil
	}
	if window <= 0 || elapsed >= window {
		return lines
	}

	per := window / time.Duration(n)
	if per <= 0 {
		return lines
	}
	full := int(elapsed / per)
	if full >= n {
		return lines
	}

	out := make([]string, 0, full+1)
	out = append(out, lines[:full]...)

	partial := elapsed - time.Duration(full)*per
	runes := []rune(lines[full])
	k := int(int64(len(runes)) * int64(partial) / int64(per))
	if k > 0 {
		out = append(out, string(runes[:k]))
	}
	return out
}

// Progress maps elapsed within [start, end) onto [0, 1].
func Progress(elapsed, start, end time.Duration) float64 {
	if elapsed <= start {
		return 0
	}
	if elapsed >= end || end <= start {
		return 1
	}
	return float64(elapsed-start) / float64(end-start)
}

// EaseOut is a cubic ease-out on [0, 1].
func EaseOut(p float64) float64 {
	q := 1 - p
	return 1 - q*q*q
}
