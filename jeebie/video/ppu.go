package video

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/bit"
	"github.com/valerio/jeebie-core/jeebie/memory"
)

// Mode is the PPU mode reported in the low two bits of STAT.
type Mode uint8

const (
	HBlankMode   Mode = 0
	VBlankMode   Mode = 1
	OAMScanMode  Mode = 2
	TransferMode Mode = 3
)

func (m Mode) String() string {
	switch m {
	case HBlankMode:
		return "hblank"
	case VBlankMode:
		return "vblank"
	case OAMScanMode:
		return "oam"
	case TransferMode:
		return "transfer"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

const (
	dotsPerLine    = 456
	linesPerFrame  = 154
	visibleLines   = FramebufferHeight
	oamScanDots    = 80
	transferDots   = 172
	maxTransferLen = 289
	spritePenalty  = 6
	windowPenalty  = 6

	// DotsPerFrame is the number of clock ticks between two VBlank interrupts.
	DotsPerFrame = dotsPerLine * linesPerFrame
)

// LCDC bits
const (
	bgDisplay              uint8 = 0
	spriteDisplayEnable    uint8 = 1
	spriteSize             uint8 = 2
	bgTileMapDisplaySelect uint8 = 3
	bgWindowTileDataSelect uint8 = 4
	windowDisplayEnable    uint8 = 5
	windowTileMapSelect    uint8 = 6
	lcdDisplayEnable       uint8 = 7
)

// STAT bits
const (
	statCoincidence uint8 = 2
	statHBlankIRQ   uint8 = 3
	statVBlankIRQ   uint8 = 4
	statOAMIRQ      uint8 = 5
	statLYCIRQ      uint8 = 6
	statWritable    uint8 = 0x78
)

// Bus is what the PPU needs from the memory bus.
type Bus interface {
	VRAMReader
	OAMReader
	RequestInterrupt(addr.Interrupt)
}

// State is the serializable PPU state.
type State struct {
	LCDC, STAT, SCY, SCX, LY, LYC, WY, WX, BGP, OBP0, OBP1 uint8

	Mode        Mode
	Dot         int
	TransferLen int
	WindowLine  int
	WindowSeen  bool
	StatLine    bool
	Frames      uint64
	Back        []uint8
	Front       []uint8
}

// PPU implements the DMG pixel processing unit: mode timing, the LCD
// registers and the scanline renderer.
type PPU struct {
	bus    Bus
	oam    *OAM
	logger *slog.Logger

	lcdc, stat, scy, scx, ly, lyc, wy, wx, bgp, obp0, obp1 uint8

	mode        Mode
	dot         int
	transferLen int
	windowLine  int
	windowSeen  bool
	statLine    bool
	frames      uint64

	back     Frame
	bgColor  [FramebufferWidth]uint8
	priority SpritePriorityBuffer
	front    atomic.Pointer[Frame]
}

var _ memory.VideoPort = (*PPU)(nil)

// New creates a PPU reading from bus. A nil logger uses slog.Default().
func New(bus Bus, logger *slog.Logger) *PPU {
	if logger == nil {
		logger = slog.Default()
	}
	p := &PPU{
		bus:    bus,
		oam:    NewOAM(bus),
		logger: logger,
	}
	p.Reset()
	return p
}

// Reset puts the PPU in its post-boot state with a blank frame.
func (p *PPU) Reset() {
	p.lcdc = 0x91
	p.stat = 0
	p.scy, p.scx = 0, 0
	p.ly, p.lyc = 0, 0
	p.wy, p.wx = 0, 0
	p.bgp = 0xFC
	p.obp0, p.obp1 = 0xFF, 0xFF
	p.windowLine = 0
	p.windowSeen = false
	p.frames = 0
	p.back = Frame{}
	p.front.Store(p.back.Clone())
	p.startLine()
	p.statLine = p.statCondition()
}

func (p *PPU) enabled() bool {
	return bit.IsSet(lcdDisplayEnable, p.lcdc)
}

// Frame returns the last frame published at VBlank. Safe for concurrent use.
func (p *PPU) Frame() *Frame {
	return p.front.Load()
}

// Frames returns how many frames have been published.
func (p *PPU) Frames() uint64 {
	return p.frames
}

// Mode returns the current PPU mode.
func (p *PPU) Mode() Mode {
	return p.mode
}

// LY returns the current scanline.
func (p *PPU) LY() uint8 {
	return p.ly
}

// Dot returns the position within the current scanline.
func (p *PPU) Dot() int {
	return p.dot
}

// Enabled reports whether the LCD is on.
func (p *PPU) Enabled() bool {
	return p.enabled()
}

// VRAMAccessible reports whether the CPU may access VRAM.
func (p *PPU) VRAMAccessible() bool {
	return !p.enabled() || p.mode != TransferMode
}

// OAMAccessible reports whether the CPU may access OAM.
func (p *PPU) OAMAccessible() bool {
	return !p.enabled() || (p.mode != OAMScanMode && p.mode != TransferMode)
}

// Tick advances the PPU by the given number of dots (clock ticks).
func (p *PPU) Tick(cycles int) {
	if !p.enabled() {
		return
	}

	for cycles > 0 {
		step := max(p.nextEvent()-p.dot, 0)
		if step > cycles {
			p.dot += cycles
			return
		}
		p.dot += step
		cycles -= step
		p.advance()
	}
}

// nextEvent returns the dot at which the current mode ends.
func (p *PPU) nextEvent() int {
	switch p.mode {
	case OAMScanMode:
		return oamScanDots
	case TransferMode:
		return oamScanDots + p.transferLen
	}
	return dotsPerLine
}

func (p *PPU) advance() {
	switch p.mode {
	case OAMScanMode:
		p.enterTransfer()
	case TransferMode:
		p.mode = HBlankMode
	default:
		p.dot = 0
		p.ly++
		switch {
		case int(p.ly) == visibleLines:
			p.enterVBlank()
		case int(p.ly) == linesPerFrame:
			p.ly = 0
			p.windowLine = 0
			p.windowSeen = false
			p.startLine()
		case int(p.ly) < visibleLines:
			p.startLine()
		}
	}
	p.updateStat()
}

func (p *PPU) startLine() {
	p.mode = OAMScanMode
	p.dot = 0
}

func (p *PPU) enterTransfer() {
	p.mode = TransferMode
	if p.ly == p.wy {
		p.windowSeen = true
	}

	sprites := p.oam.ScanLine(int(p.ly), p.spriteHeight())

	length := transferDots + int(p.scx&0x07)
	if p.windowVisible() {
		length += windowPenalty
	}
	if bit.IsSet(spriteDisplayEnable, p.lcdc) {
		length += spritePenalty * len(sprites)
	}
	p.transferLen = min(length, maxTransferLen)

	p.renderScanline()
}

func (p *PPU) enterVBlank() {
	p.mode = VBlankMode
	p.frames++
	p.back.Number = p.frames
	p.front.Store(p.back.Clone())
	p.bus.RequestInterrupt(addr.VBlankInterrupt)
}

func (p *PPU) statCondition() bool {
	if p.ly == p.lyc && bit.IsSet(statLYCIRQ, p.stat) {
		return true
	}
	switch p.mode {
	case HBlankMode:
		return bit.IsSet(statHBlankIRQ, p.stat)
	case VBlankMode:
		return bit.IsSet(statVBlankIRQ, p.stat)
	case OAMScanMode:
		return bit.IsSet(statOAMIRQ, p.stat)
	}
	return false
}

// updateStat raises the STAT interrupt on a rising edge of the combined line.
func (p *PPU) updateStat() {
	line := p.enabled() && p.statCondition()
	if bit.Rising(p.statLine, line) {
		p.bus.RequestInterrupt(addr.LCDSTATInterrupt)
	}
	p.statLine = line
}

func (p *PPU) spriteHeight() int {
	if bit.IsSet(spriteSize, p.lcdc) {
		return 16
	}
	return 8
}

func (p *PPU) readSTAT() uint8 {
	value := 0x80 | p.stat&statWritable
	if !p.enabled() {
		return value
	}
	return bit.SetTo(statCoincidence, value, p.ly == p.lyc) | uint8(p.mode)
}

// ReadRegister returns the value of an LCD register (FF40-FF4B except DMA).
func (p *PPU) ReadRegister(address uint16) byte {
	switch address {
	case addr.LCDC:
		return p.lcdc
	case addr.STAT:
		return p.readSTAT()
	case addr.SCY:
		return p.scy
	case addr.SCX:
		return p.scx
	case addr.LY:
		return p.ly
	case addr.LYC:
		return p.lyc
	case addr.BGP:
		return p.bgp
	case addr.OBP0:
		return p.obp0
	case addr.OBP1:
		return p.obp1
	case addr.WY:
		return p.wy
	case addr.WX:
		return p.wx
	}
	return 0xFF
}

// WriteRegister updates an LCD register. LY is read-only and the low three
// bits of STAT are ignored.
func (p *PPU) WriteRegister(address uint16, value byte) {
	switch address {
	case addr.LCDC:
		p.writeLCDC(value)
	case addr.STAT:
		p.stat = value & statWritable
		p.updateStat()
	case addr.SCY:
		p.scy = value
	case addr.SCX:
		p.scx = value
	case addr.LYC:
		p.lyc = value
		p.updateStat()
	case addr.BGP:
		p.bgp = value
	case addr.OBP0:
		p.obp0 = value
	case addr.OBP1:
		p.obp1 = value
	case addr.WY:
		p.wy = value
	case addr.WX:
		p.wx = value
	}
}

func (p *PPU) writeLCDC(value byte) {
	wasOn := p.enabled()
	p.lcdc = value
	isOn := p.enabled()

	switch {
	case wasOn && !isOn:
		p.mode = HBlankMode
		p.ly = 0
		p.dot = 0
		p.statLine = false
		p.logger.Debug("LCD disabled", "frame", p.frames)
	case !wasOn && isOn:
		p.ly = 0
		p.windowLine = 0
		p.windowSeen = false
		p.startLine()
		p.updateStat()
		p.logger.Debug("LCD enabled", "frame", p.frames)
	}
}

// State captures the PPU for a save state.
func (p *PPU) State() State {
	front := p.Frame()
	return State{
		LCDC: p.lcdc, STAT: p.stat, SCY: p.scy, SCX: p.scx, LY: p.ly, LYC: p.lyc,
		WY: p.wy, WX: p.wx, BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1,
		Mode:        p.mode,
		Dot:         p.dot,
		TransferLen: p.transferLen,
		WindowLine:  p.windowLine,
		WindowSeen:  p.windowSeen,
		StatLine:    p.statLine,
		Frames:      p.frames,
		Back:        append([]uint8(nil), p.back.Pix[:]...),
		Front:       append([]uint8(nil), front.Pix[:]...),
	}
}

// Validate checks that a state could have been produced by a PPU.
func (s State) Validate() error {
	if len(s.Back) != len(Frame{}.Pix) || len(s.Front) != len(Frame{}.Pix) {
		return errors.Errorf("frame buffer has %d/%d pixels", len(s.Back), len(s.Front))
	}
	if s.Mode > TransferMode || int(s.LY) >= linesPerFrame || s.Dot < 0 || s.Dot >= dotsPerLine {
		return errors.Errorf("invalid timing: mode %d, LY %d, dot %d", s.Mode, s.LY, s.Dot)
	}
	return nil
}

// Restore loads a state captured by State. The PPU is unchanged on error.
func (p *PPU) Restore(s State) error {
	if err := s.Validate(); err != nil {
		return errors.Wrap(err, "invalid PPU state")
	}

	p.lcdc, p.stat, p.scy, p.scx, p.ly, p.lyc = s.LCDC, s.STAT&statWritable, s.SCY, s.SCX, s.LY, s.LYC
	p.wy, p.wx, p.bgp, p.obp0, p.obp1 = s.WY, s.WX, s.BGP, s.OBP0, s.OBP1
	p.mode = s.Mode
	p.dot = s.Dot
	p.transferLen = s.TransferLen
	p.windowLine = s.WindowLine
	p.windowSeen = s.WindowSeen
	p.statLine = s.StatLine
	p.frames = s.Frames

	copy(p.back.Pix[:], s.Back)
	p.back.Number = s.Frames
	front := &Frame{Number: s.Frames}
	copy(front.Pix[:], s.Front)
	p.front.Store(front)

	p.logger.Debug("PPU state restored", "ly", p.ly, "mode", p.mode.String(), "dot", p.dot)
	return nil
}
