package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ApplyDuration parses a duration string of the form [+|-]H[:MM] and applies it to base.
// Without a sign the parsed value replaces base, with a sign it is added to or
// subtracted from base.
func ApplyDuration(s string, base time.Duration) (time.Duration, error) {
	input := strings.TrimSpace(s)
	if input == "" {
		return 0, &FormatError{Input: s, Reason: "empty duration"}
	}

	sign := 0
	switch input[0] {
	case '+':
		sign = 1
		input = input[1:]
	case '-':
		sign = -1
		input = input[1:]
	}

	parts := strings.Split(input, ":")
	if len(parts) > 2 {
		return 0, &FormatError{Input: s, Reason: "expected H or H:MM"}
	}

	var magnitude time.Duration
	units := []time.Duration{time.Hour, time.Minute}
	for i, part := range parts {
		part = strings.TrimSpace(part)
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || !isDigits(part) {
			if errors.Is(err, strconv.ErrRange) {
				return 0, tooLong(s)
			}
			return 0, &FormatError{Input: s, Reason: fmt.Sprintf("%q is not a non-negative integer", part)}
		}
		if n > math.MaxInt64/int64(units[i]) {
			return 0, tooLong(s)
		}
		d := time.Duration(n) * units[i]
		if magnitude > math.MaxInt64-d {
			return 0, tooLong(s)
		}
		magnitude += d
	}

	if sign == 0 {
		return magnitude, nil
	}

	if sign > 0 && base > math.MaxInt64-magnitude {
		return 0, tooLong(s)
	}
	result := base + time.Duration(sign)*magnitude
	if result < 0 {
		return 0, &FormatError{Input: s, Reason: fmt.Sprintf("duration would become negative (%s)", FormatDuration(base))}
	}
	return result, nil
}

func tooLong(s string) error {
	return &FormatError{Input: s, Reason: "duration is too long"}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// FormatDuration renders d as HH:MM
func FormatDuration(d time.Duration) string {
	total := int64(d / time.Minute)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// Hours returns d in hours rounded to two decimals
func Hours(d time.Duration) float64 {
	return math.Round(d.Hours()*100) / 100
}
