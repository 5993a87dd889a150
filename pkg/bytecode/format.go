package bytecode

import (
	"math"
	"strconv"
)

// FormatFloat renders f the way C's "%.6g" does: six significant digits,
// trailing zeros dropped, exponent form for very large or small magnitudes,
// and "inf"/"nan" spellings.
func FormatFloat(f float32) string {
	d := float64(f)
	switch {
	case math.IsNaN(d):
		if math.Signbit(d) {
			return "-nan"
		}
		return "nan"
	case math.IsInf(d, 1):
		return "inf"
	case math.IsInf(d, -1):
		return "-inf"
	}
	return strconv.FormatFloat(d, 'g', 6, 64)
}

// FormatInt renders n in decimal.
func FormatInt(n int32) string {
	return strconv.FormatInt(int64(n), 10)
}
