package resolve

import (
	"sort"
	"strings"
)

// CompareVersions orders version directory names numerically segment by
// segment, so "v10.2.0" sorts above "v9.0.0". A leading "v" is ignored and
// non-numeric segments fall back to string comparison. It returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	as := strings.Split(trimVersionPrefix(a), ".")
	bs := strings.Split(trimVersionPrefix(b), ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y string
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		if c := compareSegment(x, y); c != 0 {
			return c
		}
	}
	return strings.Compare(a, b)
}

// SortVersionsDesc sorts names highest version first.
func SortVersionsDesc(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return CompareVersions(names[i], names[j]) > 0
	})
}

func trimVersionPrefix(s string) string {
	if len(s) > 1 && (s[0] == 'v' || s[0] == 'V') && isDigit(s[1]) {
		return s[1:]
	}
	return s
}

// compareSegment compares runs of digits by value and everything else
// lexically, the way a natural sort does.
func compareSegment(a, b string) int {
	for a != "" && b != "" {
		if isDigit(a[0]) && isDigit(b[0]) {
			na, ra := splitDigits(a)
			nb, rb := splitDigits(b)
			if c := compareNumeric(na, nb); c != 0 {
				return c
			}
			a, b = ra, rb
			continue
		}
		if a[0] != b[0] {
			if a[0] < b[0] {
				return -1
			}
			return 1
		}
		a, b = a[1:], b[1:]
	}
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	default:
		return 1
	}
}

func splitDigits(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
