package automation

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
)

// ErrElementNotFound is returned when a step's target is not on screen
var ErrElementNotFound = errors.New("element not found")

// ErrUnsupportedAction is returned for actions a session cannot perform
var ErrUnsupportedAction = errors.New("unsupported action")

// Engine opens automation sessions
type Engine interface {
	Name() string
	NewSession(ctx context.Context) (Session, error)
}

// Session performs steps against one application surface and captures what
// it currently shows. Wait steps are handled by the Executor.
type Session interface {
	Perform(ctx context.Context, step model.Step) error
	Capture(ctx context.Context) ([]byte, error) // PNG
	Close() error
}

// DefaultWaitSeconds is used when a wait step has no usable number
const DefaultWaitSeconds = 3

// DefaultScrollAmount is used when a scroll step has no usable number.
// Negative amounts scroll down.
const DefaultScrollAmount = -3

var firstNumber = regexp.MustCompile(`\d+`)

// ParseWaitSeconds returns the first integer in value, e.g. "5 seconds" is 5
func ParseWaitSeconds(value *string) int {
	if value == nil {
		return DefaultWaitSeconds
	}
	m := firstNumber.FindString(*value)
	if m == "" {
		return DefaultWaitSeconds
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return DefaultWaitSeconds
	}
	return n
}

// ParseScrollAmount reads a signed scroll amount from value
func ParseScrollAmount(value *string) int {
	if value == nil || strings.TrimSpace(*value) == "" {
		return DefaultScrollAmount
	}
	n, err := strconv.Atoi(strings.TrimSpace(*value))
	if err != nil {
		return DefaultScrollAmount
	}
	return n
}

// KeyInput returns the key or key combination a key step refers to. The
// value wins over the target, matching how plans are usually written.
func KeyInput(step model.Step) string {
	key := step.Target
	if step.Value != nil && *step.Value != "" {
		key = *step.Value
	}
	return strings.ToLower(strings.TrimSpace(key))
}

// SplitCombination splits "ctrl + shift+s" into ["ctrl", "shift", "s"]
func SplitCombination(combo string) []string {
	combo = strings.ReplaceAll(strings.ToLower(combo), " ", "")
	var keys []string
	for _, k := range strings.Split(combo, "+") {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// typesIntoFocus reports whether a type_text target means the focused element
func typesIntoFocus(target string) bool {
	switch strings.ToLower(strings.TrimSpace(target)) {
	case "", "editor", "code editor", "screen":
		return true
	}
	return false
}
