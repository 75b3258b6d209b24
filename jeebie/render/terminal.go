package render

import (
	"context"
	"log/slog"

	"github.com/gdamore/tcell/v2"
	"github.com/pkg/errors"

	"github.com/valerio/jeebie-core/jeebie"
	"github.com/valerio/jeebie-core/jeebie/memory"
	"github.com/valerio/jeebie-core/jeebie/timing"
	"github.com/valerio/jeebie-core/jeebie/video"
)

// Terminals only report key presses, so a press is held for a few frames.
const keyHoldFrames = 8

var keyBindings = map[tcell.Key]memory.JoypadKey{
	tcell.KeyEnter: memory.JoypadStart,
	tcell.KeyRight: memory.JoypadRight,
	tcell.KeyLeft:  memory.JoypadLeft,
	tcell.KeyUp:    memory.JoypadUp,
	tcell.KeyDown:  memory.JoypadDown,
}

var runeBindings = map[rune]memory.JoypadKey{
	'a': memory.JoypadA,
	's': memory.JoypadB,
	'q': memory.JoypadSelect,
}

// Terminal presents frames with tcell, two pixel rows per text row, and feeds
// key presses back as joypad state.
type Terminal struct {
	screen  tcell.Screen
	emu     jeebie.Emulator
	limiter timing.Limiter
	logger  *slog.Logger
	pad     memory.Joypad
	held    [8]int
}

// NewTerminal opens the controlling terminal.
func NewTerminal(emu jeebie.Emulator, limiter timing.Limiter, logger *slog.Logger) (*Terminal, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize terminal")
	}
	return NewTerminalWithScreen(screen, emu, limiter, logger)
}

// NewTerminalWithScreen presents on an existing screen, e.g. a simulation screen.
func NewTerminalWithScreen(screen tcell.Screen, emu jeebie.Emulator, limiter timing.Limiter, logger *slog.Logger) (*Terminal, error) {
	if err := screen.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize terminal")
	}
	if logger == nil {
		logger = slog.Default()
	}
	screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	screen.Clear()

	return &Terminal{
		screen:  screen,
		emu:     emu,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Run drives the emulator one frame per limiter tick until Escape or Ctrl-C is
// pressed or ctx is done. The screen is released on return.
func (t *Terminal) Run(ctx context.Context) error {
	defer func() {
		t.logger.Info("Finishing terminal")
		t.screen.Fini()
	}()

	events := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	go t.screen.ChannelEvents(events, quit)
	defer close(quit)

	for {
		if t.drainEvents(events) {
			return nil
		}

		t.emu.SetJoypad(t.joypadState())
		t.draw(t.emu.RunOneFrame())
		t.screen.Show()

		if err := t.limiter.Wait(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

// drainEvents handles every queued event and reports whether the user asked to quit.
func (t *Terminal) drainEvents(events <-chan tcell.Event) bool {
	for {
		select {
		case ev, ok := <-events:
			if !ok || ev == nil {
				return false
			}
			if t.handleEvent(ev) {
				return true
			}
		default:
			return false
		}
	}
}

func (t *Terminal) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			t.logger.Info("Received signal to stop")
			return true
		case tcell.KeyRune:
			if key, ok := runeBindings[ev.Rune()]; ok {
				t.press(key)
			}
		default:
			if key, ok := keyBindings[ev.Key()]; ok {
				t.press(key)
			}
		}
	case *tcell.EventResize:
		t.screen.Sync()
	}
	return false
}

func (t *Terminal) press(key memory.JoypadKey) {
	if t.pad.Press(key) {
		t.logger.Debug("Key pressed", "key", int(key))
	}
	t.held[key] = keyHoldFrames
}

// joypadState returns the keys still held and counts down their hold time.
func (t *Terminal) joypadState() byte {
	state := t.pad.Pressed()
	for key, frames := range t.held {
		if frames == 0 {
			continue
		}
		t.held[key]--
		if t.held[key] == 0 {
			t.pad.Release(memory.JoypadKey(key))
		}
	}
	return state
}

func shadeColor(shade uint8) tcell.Color {
	return tcell.NewHexColor(int32(video.ShadeColors[shade&0x03] & 0xFFFFFF))
}

func (t *Terminal) draw(frame *video.Frame) {
	for row := 0; row < video.FramebufferHeight/2; row++ {
		for x := 0; x < video.FramebufferWidth; x++ {
			top, bottom := frame.At(x, row*2), frame.At(x, row*2+1)
			style := tcell.StyleDefault.Foreground(shadeColor(top)).Background(shadeColor(bottom))
			t.screen.SetContent(x, row, '▀', nil, style)
		}
	}

	status := []rune(t.emu.Status().String())
	for x := 0; x < video.FramebufferWidth; x++ {
		r := ' '
		if x < len(status) {
			r = status[x]
		}
		t.screen.SetContent(x, video.FramebufferHeight/2, r, nil, tcell.StyleDefault)
	}
}
