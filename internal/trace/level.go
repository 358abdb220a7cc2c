package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity.
type Level uint8

const (
	LevelOff     Level = iota // no tracing
	LevelCommand              // command boundaries only
	LevelPass                 // batch steps
	LevelItem                 // per-signature and per-table events
	LevelDebug                // everything
)

// String returns the string representation of Level.
func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelCommand:
		return "command"
	case LevelPass:
		return "pass"
	case LevelItem:
		return "item"
	case LevelDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "off":
		return LevelOff, nil
	case "command":
		return LevelCommand, nil
	case "pass":
		return LevelPass, nil
	case "item":
		return LevelItem, nil
	case "debug":
		return LevelDebug, nil
	default:
		return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|command|pass|item|debug)", s)
	}
}

// ShouldEmit returns true if the given scope should emit at this level.
func (l Level) ShouldEmit(scope Scope) bool {
	if l == LevelOff || scope == 0 {
		return false
	}
	return uint8(scope) <= uint8(l)
}
