package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Priority is the Pushover message priority. Emergency priority (2) needs
// acknowledgement handling and is not supported.
type Priority int

const (
	PriorityLowest Priority = -2
	PriorityLow    Priority = -1
	PriorityNormal Priority = 0
	PriorityHigh   Priority = 1
)

var priorityNames = map[Priority]string{
	PriorityLowest: "lowest",
	PriorityLow:    "low",
	PriorityNormal: "normal",
	PriorityHigh:   "high",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return strconv.Itoa(int(p))
}

func (p Priority) IsValid() bool {
	_, ok := priorityNames[p]
	return ok
}

// ParsePriorityFromString accepts either a level name or its integer value.
func ParsePriorityFromString(s string) (Priority, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))

	for p, name := range priorityNames {
		if name == normalized {
			return p, nil
		}
	}

	n, err := strconv.Atoi(normalized)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	p := Priority(n)
	if !p.IsValid() {
		return 0, fmt.Errorf("%w: unsupported priority %d", ErrValidation, n)
	}
	return p, nil
}
