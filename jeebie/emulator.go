package jeebie

import (
	"github.com/valerio/jeebie-core/jeebie/video"
)

// Emulator is what a host front end needs from the core: frames out, buttons in.
type Emulator interface {
	RunOneFrame() *video.Frame
	Frame() *video.Frame
	SetJoypad(state byte)
	Status() Status
}

var _ Emulator = (*DMG)(nil)
