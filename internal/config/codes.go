package config

import "github.com/kidandcat/kanata-go/internal/oscode"

// keyNames is the inverse of oscode's private name table: the config surface
// a user writes key names in, the same short names internal/oscode.Name
// renders back out.
var keyNames = map[string]oscode.Code{
	"a": oscode.A, "b": oscode.B, "c": oscode.C, "d": oscode.D, "e": oscode.E,
	"f": oscode.F, "g": oscode.G, "h": oscode.H, "i": oscode.I, "j": oscode.J,
	"k": oscode.K, "l": oscode.L, "m": oscode.M, "n": oscode.N, "o": oscode.O,
	"p": oscode.P, "q": oscode.Q, "r": oscode.R, "s": oscode.S, "t": oscode.T,
	"u": oscode.U, "v": oscode.V, "w": oscode.W, "x": oscode.X, "y": oscode.Y,
	"z": oscode.Z,
	"1": oscode.Num1, "2": oscode.Num2, "3": oscode.Num3, "4": oscode.Num4,
	"5": oscode.Num5, "6": oscode.Num6, "7": oscode.Num7, "8": oscode.Num8,
	"9": oscode.Num9, "0": oscode.Num0,
	"ret": oscode.Enter, "enter": oscode.Enter,
	"esc": oscode.Escape,
	"bspc": oscode.Backspace,
	"tab":  oscode.Tab,
	"spc":  oscode.Space, "space": oscode.Space,
	"caps": oscode.CapsLock,
	"f1": oscode.F1, "f2": oscode.F2, "f3": oscode.F3, "f4": oscode.F4,
	"f5": oscode.F5, "f6": oscode.F6, "f7": oscode.F7, "f8": oscode.F8,
	"f9": oscode.F9, "f10": oscode.F10, "f11": oscode.F11, "f12": oscode.F12,
	"lctl": oscode.LeftCtrl, "lsft": oscode.LeftShift, "lalt": oscode.LeftAlt, "lmet": oscode.LeftMeta,
	"rctl": oscode.RightCtrl, "rsft": oscode.RightShift, "ralt": oscode.RightAlt, "rmet": oscode.RightMeta,
	"mouse-left": oscode.MouseLeft, "mouse-right": oscode.MouseRight, "mouse-middle": oscode.MouseMiddle,
}

// lookupCode resolves a bare key name to its Code.
func lookupCode(name string) (oscode.Code, bool) {
	c, ok := keyNames[name]
	return c, ok
}
