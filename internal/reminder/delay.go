package reminder

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseDelay parses a snooze delay in minutes ("15", "30m", "60 min").
func ParseDelay(raw string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, suffix := range []string{"minutes", "min", "m"} {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDelay, raw)
	}
	if err := validateDelay(n); err != nil {
		return 0, err
	}
	return n, nil
}

func validateDelay(minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidDelay, minutes)
	}
	if minutes > MaxSnoozeMinutes {
		return fmt.Errorf("%w: at most %d, got %d", ErrInvalidDelay, MaxSnoozeMinutes, minutes)
	}
	return nil
}
