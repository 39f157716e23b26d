package input

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bendahl/uinput"
)

// Uinput injects input through the Linux uinput subsystem. Requires write
// access to /dev/uinput.
type Uinput struct {
	mu    sync.Mutex
	kb    uinput.Keyboard
	mouse uinput.Mouse
}

// NewUinput creates the virtual keyboard and mouse devices.
func NewUinput() (*Uinput, error) {
	kb, err := uinput.CreateKeyboard("/dev/uinput", []byte("streamduckd-keyboard"))
	if err != nil {
		return nil, fmt.Errorf("creating virtual keyboard: %w", err)
	}
	mouse, err := uinput.CreateMouse("/dev/uinput", []byte("streamduckd-mouse"))
	if err != nil {
		kb.Close()
		return nil, fmt.Errorf("creating virtual mouse: %w", err)
	}
	return &Uinput{kb: kb, mouse: mouse}, nil
}

func (u *Uinput) Tap(keys []string) error {
	codes := make([]int, 0, len(keys))
	for _, name := range keys {
		code, ok := keyCodes[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return badKey(name)
		}
		codes = append(codes, code)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	for i, code := range codes {
		if err := u.kb.KeyDown(code); err != nil {
			// Release whatever went down before the failure.
			for j := i - 1; j >= 0; j-- {
				u.kb.KeyUp(codes[j])
			}
			return fmt.Errorf("key down %s: %w", keys[i], err)
		}
	}
	var firstErr error
	for i := len(codes) - 1; i >= 0; i-- {
		if err := u.kb.KeyUp(codes[i]); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("key up %s: %w", keys[i], err)
		}
	}
	return firstErr
}

func (u *Uinput) Click(button string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch strings.ToLower(button) {
	case "left", "":
		return u.mouse.LeftClick()
	case "right":
		return u.mouse.RightClick()
	default:
		return fmt.Errorf("unknown mouse button %q", button)
	}
}

func (u *Uinput) Move(dx, dy int) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if dx > 0 {
		if err := u.mouse.MoveRight(int32(dx)); err != nil {
			return err
		}
	} else if dx < 0 {
		if err := u.mouse.MoveLeft(int32(-dx)); err != nil {
			return err
		}
	}
	if dy > 0 {
		return u.mouse.MoveDown(int32(dy))
	} else if dy < 0 {
		return u.mouse.MoveUp(int32(-dy))
	}
	return nil
}

func (u *Uinput) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	err := u.kb.Close()
	if merr := u.mouse.Close(); err == nil {
		err = merr
	}
	return err
}
