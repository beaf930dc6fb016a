package bot

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// maxTimeout is the longest communication timeout Discord accepts.
const maxTimeout = 28 * 24 * time.Hour

var (
	errBadDuration  = errors.New("duration must look like 30s, 10m, 1h or 1d")
	errLongDuration = errors.New("duration exceeds 28 days")
)

// parseDuration reads a positive count followed by one unit of s, m, h or d.
func parseDuration(value string) (time.Duration, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if len(value) < 2 {
		return 0, errBadDuration
	}

	var unit time.Duration
	switch value[len(value)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	default:
		return 0, errBadDuration
	}

	count, err := strconv.Atoi(value[:len(value)-1])
	if err != nil || count <= 0 {
		return 0, errBadDuration
	}
	if time.Duration(count) > maxTimeout/unit {
		return 0, errLongDuration
	}
	return time.Duration(count) * unit, nil
}
