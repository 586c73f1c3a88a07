package bronze

import (
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// IsNull reports whether a raw field carries no value
func IsNull(raw string) bool {
	s := strings.TrimSpace(raw)
	return s == "" || strings.EqualFold(s, "null")
}

// ParseInt reads a base-10 integer. Leading zeros stay decimal.
func ParseInt(raw string) (int64, bool) {
	if IsNull(raw) {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseFloat reads a finite decimal number
func ParseFloat(raw string) (float64, bool) {
	if IsNull(raw) {
		return 0, false
	}
	f, err := cast.ToFloat64E(strings.TrimSpace(raw))
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
