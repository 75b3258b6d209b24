package jeebie

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/cpu"
	"github.com/valerio/jeebie-core/jeebie/memory"
	"github.com/valerio/jeebie-core/jeebie/serial"
	"github.com/valerio/jeebie-core/jeebie/video"
)

// postBootDivider is the internal divider value left behind by the DMG boot ROM.
const postBootDivider = 0xABCC

// Option configures a DMG.
type Option func(*config)

type config struct {
	logger      *slog.Logger
	bootROM     []byte
	clock       memory.Clock
	fixedSerial bool
}

// WithLogger sets the diagnostic logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBootROM maps a 256-byte boot ROM at power on. Execution then starts at 0x0000
// instead of the post-boot state.
func WithBootROM(rom []byte) Option {
	return func(c *config) { c.bootROM = rom }
}

// WithClock sets the time source of the MBC3 real-time clock.
func WithClock(clock memory.Clock) Option {
	return func(c *config) { c.clock = clock }
}

// WithSerialTiming makes serial transfers take the 4096 ticks of the internal
// clock instead of completing on the next tick.
func WithSerialTiming(fixed bool) Option {
	return func(c *config) { c.fixedSerial = fixed }
}

// DMG owns every component of the machine and advances them in lock-step.
type DMG struct {
	cpu    *cpu.CPU
	mem    *memory.MMU
	ppu    *video.PPU
	serial *serial.LogSink

	cfg    config
	logger *slog.Logger
	ticks  uint64
}

// Status is a summary of the running machine.
type Status struct {
	Frames       uint64
	Ticks        uint64
	Instructions uint64
	Cycles       uint64
	PC           uint16
	Opcode       uint16
	IME          bool
	Halted       bool
	Stopped      bool
	Locked       bool
	LY           uint8
	Mode         video.Mode
}

func (s Status) String() string {
	return fmt.Sprintf("frame=%d ticks=%d cpu=%d instr=%d pc=0x%04X op=0x%04X ime=%t halted=%t locked=%t ly=%d mode=%s",
		s.Frames, s.Ticks, s.Cycles, s.Instructions, s.PC, s.Opcode, s.IME, s.Halted, s.Locked, s.LY, s.Mode)
}

// New creates a DMG with no cartridge inserted.
func New(opts ...Option) (*DMG, error) {
	return NewWithCartridge(memory.NewCartridge(), opts...)
}

// NewWithROM parses a ROM image and creates a DMG with it inserted.
func NewWithROM(rom []byte, opts ...Option) (*DMG, error) {
	cart, err := memory.NewCartridgeWithData(rom)
	if err != nil {
		return nil, errors.Wrap(err, "loading cartridge")
	}
	return NewWithCartridge(cart, opts...)
}

// NewWithFile reads a ROM from disk and creates a DMG with it inserted.
func NewWithFile(path string, opts ...Option) (*DMG, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading rom %s", path)
	}
	return NewWithROM(data, opts...)
}

// NewWithCartridge creates a DMG with the given cartridge inserted.
func NewWithCartridge(cart *memory.Cartridge, opts ...Option) (*DMG, error) {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	d := &DMG{cfg: cfg, logger: cfg.logger}

	sinkOpts := []serial.LogSinkOption{serial.WithLogger(cfg.logger)}
	if cfg.fixedSerial {
		sinkOpts = append(sinkOpts, serial.WithFixedTiming())
	}
	d.serial = serial.NewLogSink(func() { d.mem.RequestInterrupt(addr.SerialInterrupt) }, sinkOpts...)

	memOpts := []memory.Option{memory.WithLogger(cfg.logger), memory.WithSerial(d.serial)}
	if cfg.bootROM != nil {
		memOpts = append(memOpts, memory.WithBootROM(cfg.bootROM))
	}
	if cfg.clock != nil {
		memOpts = append(memOpts, memory.WithClock(cfg.clock))
	}

	mem, err := memory.NewWithCartridge(cart, memOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating memory bus")
	}
	d.mem = mem
	d.ppu = video.New(mem, cfg.logger)
	mem.AttachVideo(d.ppu)
	d.cpu = cpu.New(mem, cfg.logger)

	mem.LogWarnings()
	d.Reset()
	return d, nil
}

// Reset returns every component to its power-on state. The cartridge stays
// inserted and battery-backed RAM keeps its contents.
func (d *DMG) Reset() {
	d.mem.Reset()
	d.ppu.Reset()
	d.cpu.Reset(d.cfg.bootROM != nil)
	if d.cfg.bootROM == nil {
		d.mem.SetTimerSeed(postBootDivider)
	}
	d.ticks = 0
}

// Step executes one instruction, advances the peripherals by the ticks it took
// and services any pending interrupt. It returns the ticks consumed.
func (d *DMG) Step() int {
	ticks := d.cpu.Step()
	d.advance(ticks)

	if dispatch := d.cpu.ServiceInterrupts(); dispatch > 0 {
		d.advance(dispatch)
		ticks += dispatch
	}
	return ticks
}

func (d *DMG) advance(ticks int) {
	d.mem.Tick(ticks)
	d.ppu.Tick(ticks)
	d.ticks += uint64(ticks)
}

// RunCycles steps until at least n ticks have elapsed and returns the ticks
// actually consumed, overshoot included.
func (d *DMG) RunCycles(n int) int {
	total := 0
	for total < n {
		total += d.Step()
	}
	return total
}

// RunOneFrame runs until the PPU publishes the next frame and returns it. With
// the LCD off it runs for the length of one frame instead.
func (d *DMG) RunOneFrame() *video.Frame {
	start := d.ppu.Frames()
	elapsed := 0
	for d.ppu.Frames() == start {
		if !d.ppu.Enabled() && elapsed >= video.DotsPerFrame {
			break
		}
		elapsed += d.Step()
	}
	return d.ppu.Frame()
}

// RunFrames runs n frames, checking ctx between frames. It returns the number of
// frames completed.
func (d *DMG) RunFrames(ctx context.Context, n int) (int, error) {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		d.RunOneFrame()
	}
	return n, nil
}

// Frame returns the last completed frame. It is safe to call from another goroutine.
func (d *DMG) Frame() *video.Frame {
	return d.ppu.Frame()
}

// SetJoypad replaces the button state: bits 0-3 Right, Left, Up, Down and bits
// 4-7 A, B, Select, Start, 1 = pressed.
func (d *DMG) SetJoypad(state byte) {
	d.mem.SetJoypad(state)
}

// Status reports counters and CPU flags for diagnostics.
func (d *DMG) Status() Status {
	return Status{
		Frames:       d.ppu.Frames(),
		Ticks:        d.ticks,
		Instructions: d.cpu.Instructions(),
		Cycles:       d.cpu.Cycles(),
		PC:           d.cpu.PC(),
		Opcode:       d.cpu.CurrentOpcode(),
		IME:          d.cpu.IME(),
		Halted:       d.cpu.Halted(),
		Stopped:      d.cpu.Stopped(),
		Locked:       d.cpu.Locked(),
		LY:           d.ppu.LY(),
		Mode:         d.ppu.Mode(),
	}
}

// Registers returns a copy of the CPU registers.
func (d *DMG) Registers() cpu.Registers {
	return d.cpu.Registers()
}

// CurrentInstruction disassembles the instruction at PC.
func (d *DMG) CurrentInstruction() string {
	return cpu.Disassemble(d.mem, d.cpu.PC())
}

// Read reads the bus as the CPU sees it.
func (d *DMG) Read(address uint16) byte {
	return d.mem.Read(address)
}

// Cartridge returns the inserted cartridge.
func (d *DMG) Cartridge() *memory.Cartridge {
	return d.mem.Cartridge()
}

// BatteryRAM returns a copy of the cartridge RAM when the cartridge has a
// battery, nil otherwise.
func (d *DMG) BatteryRAM() []byte {
	if !d.mem.Mapper().HasBattery() {
		return nil
	}
	return d.mem.Mapper().BatteryRAM()
}

// LoadBatteryRAM restores cartridge RAM saved by BatteryRAM.
func (d *DMG) LoadBatteryRAM(data []byte) error {
	if !d.mem.Mapper().HasBattery() {
		return errors.New("cartridge has no battery")
	}
	return errors.Wrap(d.mem.Mapper().LoadBatteryRAM(data), "loading battery ram")
}

// SerialOutput returns the text lines sent over the serial port so far.
func (d *DMG) SerialOutput() []string {
	return d.serial.Output()
}
