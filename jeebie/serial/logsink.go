package serial

import (
	"log/slog"

	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/bit"
)

// ticksPerByte is how long an internally clocked transfer takes on DMG (8 bits at 8192 Hz).
const ticksPerByte = 4096

// State is the serializable state of the serial port.
type State struct {
	SB        byte
	SC        byte
	Active    bool
	Countdown int
	Line      []byte
}

// LogSink is a serial device with nothing on the other end of the cable. Outgoing
// bytes are collected into text lines and logged, which is how test ROMs report
// results. Every transfer receives 0xFF and raises the serial interrupt.
type LogSink struct {
	irqHandler func()
	logger     *slog.Logger
	s          State

	immediate bool
	defaultRX byte
	lines     []string
}

type LogSinkOption func(*LogSink)

// WithFixedTiming completes transfers after 4096 clock ticks instead of immediately.
func WithFixedTiming() LogSinkOption { return func(s *LogSink) { s.immediate = false } }

// WithLogger sets the logger that receives completed lines.
func WithLogger(l *slog.Logger) LogSinkOption {
	return func(s *LogSink) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewLogSink creates a new logging serial device.
// The passed function is called when a transfer is completed, should be wired
// to request the Serial interrupt.
func NewLogSink(irq func(), opts ...LogSinkOption) *LogSink {
	s := &LogSink{
		irqHandler: irq,
		immediate:  true,
		defaultRX:  0xFF,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset()
	return s
}

func (s *LogSink) Write(address uint16, value byte) {
	switch address {
	case addr.SB:
		s.s.SB = value
	case addr.SC:
		s.s.SC = value & 0x81
		s.maybeStartTransfer()
	}
}

func (s *LogSink) Read(address uint16) byte {
	switch address {
	case addr.SB:
		return s.s.SB
	case addr.SC:
		return s.s.SC | 0x7E
	default:
		return 0xFF
	}
}

func (s *LogSink) Tick(cycles int) {
	if s.immediate || !s.s.Active {
		return
	}
	s.s.Countdown -= cycles
	if s.s.Countdown <= 0 {
		s.completeTransfer()
		s.s.Countdown = 0
	}
}

func (s *LogSink) Reset() {
	s.s = State{}
	s.lines = nil
}

// Output returns every line written so far, including a partial last line.
func (s *LogSink) Output() []string {
	out := append([]string(nil), s.lines...)
	if len(s.s.Line) > 0 {
		out = append(out, string(s.s.Line))
	}
	return out
}

func (s *LogSink) maybeStartTransfer() {
	if s.s.Active {
		return
	}
	// only an internally clocked transfer (bits 7 and 0 of SC) can complete without a peer
	if !bit.IsSet(7, s.s.SC) || !bit.IsSet(0, s.s.SC) {
		return
	}

	b := s.s.SB
	if b == 0 || b == '\n' || b == '\r' {
		s.flushLine()
	} else {
		s.s.Line = append(s.s.Line, b)
	}

	if s.immediate {
		s.completeTransfer()
		return
	}

	s.s.Active = true
	s.s.Countdown = ticksPerByte
}

func (s *LogSink) flushLine() {
	if len(s.s.Line) == 0 {
		return
	}
	line := string(s.s.Line)
	s.lines = append(s.lines, line)
	s.logger.Info("serial", "line", line)
	s.s.Line = s.s.Line[:0]
}

func (s *LogSink) completeTransfer() {
	s.s.SB = s.defaultRX
	s.s.SC = bit.Reset(7, s.s.SC)
	s.s.Active = false
	if s.irqHandler != nil {
		s.irqHandler()
	}
}

// State returns a copy of the port state.
func (s *LogSink) State() State {
	st := s.s
	st.Line = append([]byte(nil), s.s.Line...)
	return st
}

// Restore replaces the port state.
func (s *LogSink) Restore(st State) {
	s.s = st
	s.s.Line = append([]byte(nil), st.Line...)
}
