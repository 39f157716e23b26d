// Package actions provides the builtin action catalog: input injection,
// external commands, page navigation and brightness. Builtins register on
// the dispatcher exactly like external handlers would.
package actions

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/streamduck/streamduckd/internal/dispatch"
	"github.com/streamduck/streamduckd/internal/input"
)

// DefaultExecTimeout bounds an exec action that does not set its own.
const DefaultExecTimeout = 10 * time.Second

// Register installs the builtin handlers on the dispatcher.
func Register(d *dispatch.Dispatcher, inj input.Injector, log *zap.Logger) {
	a := &builtins{inj: inj, log: log}
	d.Register("keystroke", a.keystroke)
	d.Register("mouse", a.mouse)
	d.Register("exec", a.execCommand)
	d.Register("page", a.page)
	d.Register("brightness", a.brightness)
}

type builtins struct {
	inj input.Injector
	log *zap.Logger
}

// keystroke taps a chord, e.g. params: {keys: "ctrl+alt+t"}.
func (a *builtins) keystroke(ctx context.Context, env dispatch.Env) error {
	chord := env.Binding.Params["keys"]
	if chord == "" {
		return fmt.Errorf("keystroke action needs a keys parameter")
	}
	return a.inj.Tap(strings.Split(chord, "+"))
}

// mouse clicks or moves the pointer. params: {click: "left"} or
// {move: "10,-5"}.
func (a *builtins) mouse(ctx context.Context, env dispatch.Env) error {
	if mv := env.Binding.Params["move"]; mv != "" {
		parts := strings.SplitN(mv, ",", 2)
		if len(parts) != 2 {
			return fmt.Errorf("mouse move wants %q as dx,dy", mv)
		}
		dx, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return fmt.Errorf("mouse move dx: %w", err)
		}
		dy, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return fmt.Errorf("mouse move dy: %w", err)
		}
		return a.inj.Move(dx, dy)
	}
	return a.inj.Click(env.Binding.Params["click"])
}

// execCommand runs an external command without a shell. params:
// {command: "playerctl", args: "play-pause", timeout: "5s"}.
func (a *builtins) execCommand(ctx context.Context, env dispatch.Env) error {
	command := env.Binding.Params["command"]
	if command == "" {
		return fmt.Errorf("exec action needs a command parameter")
	}

	timeout := DefaultExecTimeout
	if t := env.Binding.Params["timeout"]; t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("exec timeout: %w", err)
		}
		timeout = d
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var args []string
	if raw := env.Binding.Params["args"]; raw != "" {
		args = strings.Fields(raw)
	}

	cmd := exec.CommandContext(ctx, command, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if len(out) > 0 {
			return fmt.Errorf("%s: %w: %s", command, err, strings.TrimSpace(string(out)))
		}
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}

// page navigates the page stack. params: {op: "push"|"pop"|"set",
// page: "name", device: "<id or serial>"}. Without a device parameter the
// originating device is the target; cross-device targets resolve through
// the registry lookup, never by direct reference.
func (a *builtins) page(ctx context.Context, env dispatch.Env) error {
	target := env.Session
	if dev := env.Binding.Params["device"]; dev != "" {
		if env.Sessions == nil {
			return fmt.Errorf("no session lookup available")
		}
		s, ok := env.Sessions.Find(dev)
		if !ok {
			return fmt.Errorf("no active device %q", dev)
		}
		target = s
	}

	op := env.Binding.Params["op"]
	name := env.Binding.Params["page"]
	switch op {
	case "pop":
		target.PopPage()
		return nil
	case "push":
		if name == "" {
			return fmt.Errorf("page push needs a page parameter")
		}
		target.PushPage(name)
		return nil
	case "set", "":
		if name == "" {
			return fmt.Errorf("page set needs a page parameter")
		}
		target.SetPage(name)
		return nil
	}
	return fmt.Errorf("unknown page op %q", op)
}

// brightness sets panel brightness. params: {level: "40",
// device: "<id or serial>"}.
func (a *builtins) brightness(ctx context.Context, env dispatch.Env) error {
	level, err := strconv.Atoi(env.Binding.Params["level"])
	if err != nil {
		return fmt.Errorf("brightness level: %w", err)
	}

	target := env.Session
	if dev := env.Binding.Params["device"]; dev != "" {
		if env.Sessions == nil {
			return fmt.Errorf("no session lookup available")
		}
		s, ok := env.Sessions.Find(dev)
		if !ok {
			return fmt.Errorf("no active device %q", dev)
		}
		target = s
	}
	target.SetBrightness(level)
	return nil
}
