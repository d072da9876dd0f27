package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var ErrInvalidDuration = errors.New("invalid duration")

// MaxLifetime is the longest lifetime ParseDays accepts (100 years).
const MaxLifetime = 100 * 365 * 24 * time.Hour

var durationPattern = regexp.MustCompile(`^(?:(\d+)d)?(?:(\d+)h)?$`)

// ParseDays parses admin friendly lifetimes such as "7d", "12h" or "1d12h".
// A bare number is taken as hours. Zero and anything above MaxLifetime are
// rejected.
func ParseDays(s string) (time.Duration, error) {
	if _, err := strconv.Atoi(s); err == nil {
		s += "h"
	}

	m := durationPattern.FindStringSubmatch(s)
	if m == nil || s == "" {
		return 0, fmt.Errorf("%w: %q (use e.g. 1d12h)", ErrInvalidDuration, s)
	}

	days, err := parseUnit(m[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	hours, err := parseUnit(m[2])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	// bound each part before multiplying so nothing can overflow
	maxHours := int64(MaxLifetime / time.Hour)
	if days > maxHours/24 || hours > maxHours || days*24+hours > maxHours {
		return 0, fmt.Errorf("%w: %q exceeds %d days", ErrInvalidDuration, s, maxHours/24)
	}

	total := days*24 + hours
	if total == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	return time.Duration(total) * time.Hour, nil
}

func parseUnit(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
