package input

import "github.com/bendahl/uinput"

// keyCodes maps binding key names to uinput codes. Names follow the Linux
// input convention, lowercased, with a few aliases for ergonomics.
var keyCodes = map[string]int{
	"a": uinput.KeyA, "b": uinput.KeyB, "c": uinput.KeyC, "d": uinput.KeyD,
	"e": uinput.KeyE, "f": uinput.KeyF, "g": uinput.KeyG, "h": uinput.KeyH,
	"i": uinput.KeyI, "j": uinput.KeyJ, "k": uinput.KeyK, "l": uinput.KeyL,
	"m": uinput.KeyM, "n": uinput.KeyN, "o": uinput.KeyO, "p": uinput.KeyP,
	"q": uinput.KeyQ, "r": uinput.KeyR, "s": uinput.KeyS, "t": uinput.KeyT,
	"u": uinput.KeyU, "v": uinput.KeyV, "w": uinput.KeyW, "x": uinput.KeyX,
	"y": uinput.KeyY, "z": uinput.KeyZ,

	"0": uinput.Key0, "1": uinput.Key1, "2": uinput.Key2, "3": uinput.Key3,
	"4": uinput.Key4, "5": uinput.Key5, "6": uinput.Key6, "7": uinput.Key7,
	"8": uinput.Key8, "9": uinput.Key9,

	"f1": uinput.KeyF1, "f2": uinput.KeyF2, "f3": uinput.KeyF3,
	"f4": uinput.KeyF4, "f5": uinput.KeyF5, "f6": uinput.KeyF6,
	"f7": uinput.KeyF7, "f8": uinput.KeyF8, "f9": uinput.KeyF9,
	"f10": uinput.KeyF10, "f11": uinput.KeyF11, "f12": uinput.KeyF12,

	"enter":     uinput.KeyEnter,
	"esc":       uinput.KeyEsc,
	"escape":    uinput.KeyEsc,
	"space":     uinput.KeySpace,
	"tab":       uinput.KeyTab,
	"backspace": uinput.KeyBackspace,
	"delete":    uinput.KeyDelete,
	"up":        uinput.KeyUp,
	"down":      uinput.KeyDown,
	"left":      uinput.KeyLeft,
	"right":     uinput.KeyRight,
	"home":      uinput.KeyHome,
	"end":       uinput.KeyEnd,
	"pageup":    uinput.KeyPageup,
	"pagedown":  uinput.KeyPagedown,

	"leftctrl":   uinput.KeyLeftctrl,
	"ctrl":       uinput.KeyLeftctrl,
	"rightctrl":  uinput.KeyRightctrl,
	"leftshift":  uinput.KeyLeftshift,
	"shift":      uinput.KeyLeftshift,
	"rightshift": uinput.KeyRightshift,
	"leftalt":    uinput.KeyLeftalt,
	"alt":        uinput.KeyLeftalt,
	"rightalt":   uinput.KeyRightalt,
	"leftmeta":   uinput.KeyLeftmeta,
	"meta":       uinput.KeyLeftmeta,
	"super":      uinput.KeyLeftmeta,

	"volumeup":   uinput.KeyVolumeup,
	"volumedown": uinput.KeyVolumedown,
	"mute":       uinput.KeyMute,
	"playpause":  uinput.KeyPlaypause,
	"nextsong":   uinput.KeyNextsong,
	"prevsong":   uinput.KeyPrevioussong,
}
