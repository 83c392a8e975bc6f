package cart

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ParseQuantity converts quantity text typed by the user into a quantity.
//
// It reads an optional sign and the leading decimal digits, ignoring leading
// whitespace and anything after the digits ("3 pcs" is 3). Input without digits,
// or that parses to 0, yields 1. Negative values are returned as is, so applying
// them through UpdateItemQuantity removes the line item.
func ParseQuantity(text string) int {
	s := strings.TrimLeftFunc(text, unicode.IsSpace)
	negative := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		negative = s[0] == '-'
		s = s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 1
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil {
		// only a range error is possible here
		n = math.MaxInt
	}
	if n == 0 {
		return 1
	}
	if negative {
		return -n
	}
	return n
}

// addQuantity returns a+b clamped to the int range.
func addQuantity(a, b int) int {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return math.MaxInt
	case b < 0 && a < math.MinInt-b:
		return math.MinInt
	}
	return a + b
}
