// Package input abstracts keystroke and mouse injection. The core treats
// injection as a capability behind an interface; the uinput implementation
// is Linux-specific and tests substitute a recorder.
package input

import (
	"errors"
	"fmt"
)

// ErrUnknownKey means a key name in a binding has no known code.
var ErrUnknownKey = errors.New("unknown key name")

// Injector performs synthetic input. Implementations must be safe for
// concurrent use by action workers.
type Injector interface {
	// Tap presses the chord down in order and releases in reverse, e.g.
	// ["leftctrl", "c"].
	Tap(keys []string) error

	// Click clicks a mouse button: "left" or "right".
	Click(button string) error

	// Move moves the pointer by a relative offset.
	Move(dx, dy int) error

	Close() error
}

// Noop is used when no injection backend is available; every call reports
// the capability as missing so the failure surfaces per action, not at
// startup.
type Noop struct{}

func (Noop) Tap([]string) error  { return errors.New("input injection not available") }
func (Noop) Click(string) error  { return errors.New("input injection not available") }
func (Noop) Move(int, int) error { return errors.New("input injection not available") }
func (Noop) Close() error        { return nil }

// badKey formats a lookup failure.
func badKey(name string) error {
	return fmt.Errorf("%q: %w", name, ErrUnknownKey)
}
