package types

import (
	"strconv"
	"strings"
)

// CompareIDs orders two opaque article ids. Ids made only of digits compare by
// numeric value without being parsed. Equal values with different zero padding
// put the longer raw id last, so "7" sorts before "007". Any other pair compares
// as plain strings. Returns -1, 0 or +1.
func CompareIDs(a, b string) int {
	if isDigits(a) && isDigits(b) {
		ta, tb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(ta) != len(tb) {
			if len(ta) < len(tb) {
				return -1
			}
			return 1
		}
		if c := strings.Compare(ta, tb); c != 0 {
			return c
		}
		if len(a) != len(b) {
			if len(a) < len(b) {
				return -1
			}
			return 1
		}
	}
	return strings.Compare(a, b)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// WidenDistance converts an oracle float32 distance to float64 via its shortest
// decimal form, the same value obtained by writing the float32 to CSV and reading
// it back as float64.
func WidenDistance(d float32) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(d), 'g', -1, 32), 64)
	return f
}

// FormatDistance renders a distance for CSV output
func FormatDistance(d float64) string {
	return strconv.FormatFloat(d, 'g', -1, 64)
}
