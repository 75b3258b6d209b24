package memory

import (
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/audio"
	"github.com/valerio/jeebie-core/jeebie/serial"
)

type memRegion uint8

const (
	regionROM memRegion = iota
	regionVRAM
	regionExtRAM
	regionWRAM
	regionEcho
	regionOAM
	regionIO
)

// BootROMSize is the size of the DMG boot ROM.
const BootROMSize = 0x100

// SerialPort is the minimal interface for a serial device connected to SB/SC.
type SerialPort interface {
	Write(address uint16, value byte)
	Read(address uint16) byte
	Tick(cycles int)
	Reset()
	State() serial.State
	Restore(serial.State)
}

// VideoPort is the PPU as seen from the bus: it owns the LCD registers and
// decides when the CPU may touch VRAM and OAM.
type VideoPort interface {
	ReadRegister(address uint16) byte
	WriteRegister(address uint16, value byte)
	VRAMAccessible() bool
	OAMAccessible() bool
}

// State is the serializable content of the bus and the devices it owns.
type State struct {
	VRAM        []byte
	WRAM        []byte
	OAM         []byte
	IO          []byte
	HRAM        []byte
	IE          byte
	IF          byte
	BootEnabled bool
	Mapper      MapperState
	Timer       TimerState
	Joypad      JoypadState
	Serial      serial.State
	APU         audio.State
}

// MMU allows access to all memory mapped I/O and data/registers.
type MMU struct {
	cart      *Cartridge
	mapper    *Mapper
	regionMap [256]memRegion

	vram [0x2000]byte
	wram [0x2000]byte
	oam  [addr.OAMSize]byte
	io   [0x80]byte
	hram [0x7F]byte
	ie   byte
	ifr  byte

	bootROM     []byte
	bootEnabled bool

	APU    *audio.APU
	timer  Timer
	joypad Joypad
	serial SerialPort
	video  VideoPort

	logger *slog.Logger
}

// Option configures an MMU.
type Option func(*MMU)

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *MMU) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithSerial replaces the default log sink serial device.
func WithSerial(port SerialPort) Option {
	return func(m *MMU) { m.serial = port }
}

// WithBootROM maps a 256-byte boot ROM over 0x0000-0x00FF until 0xFF50 is written.
func WithBootROM(rom []byte) Option {
	return func(m *MMU) { m.bootROM = rom }
}

// WithClock sets the time source of the cartridge real-time clock.
func WithClock(c Clock) Option {
	return func(m *MMU) { m.mapper = NewMapper(m.cart, c) }
}

// New creates a memory unit with a blank cartridge.
// Equivalent to turning on a Gameboy without a cartridge in.
// It panics if an option is invalid.
func New(opts ...Option) *MMU {
	m, err := NewWithCartridge(NewCartridge(), opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// NewWithCartridge creates a memory unit with the provided cartridge loaded.
// Equivalent to turning on a Gameboy with a cartridge in.
func NewWithCartridge(cart *Cartridge, opts ...Option) (*MMU, error) {
	m := &MMU{
		cart:   cart,
		APU:    audio.New(),
		logger: slog.Default(),
	}
	m.mapper = NewMapper(cart, nil)
	for _, opt := range opts {
		opt(m)
	}
	if m.bootROM != nil && len(m.bootROM) != BootROMSize {
		return nil, errors.Errorf("boot rom must be %d bytes, got %d", BootROMSize, len(m.bootROM))
	}
	if m.serial == nil {
		m.serial = serial.NewLogSink(func() { m.RequestInterrupt(addr.SerialInterrupt) }, serial.WithLogger(m.logger))
	}
	m.timer.OnOverflow = func() { m.RequestInterrupt(addr.TimerInterrupt) }
	initRegionMap(m)
	m.Reset()
	return m, nil
}

func initRegionMap(m *MMU) {
	for i := 0x00; i <= 0x7F; i++ {
		m.regionMap[i] = regionROM
	}
	for i := 0x80; i <= 0x9F; i++ {
		m.regionMap[i] = regionVRAM
	}
	for i := 0xA0; i <= 0xBF; i++ {
		m.regionMap[i] = regionExtRAM
	}
	for i := 0xC0; i <= 0xDF; i++ {
		m.regionMap[i] = regionWRAM
	}
	for i := 0xE0; i <= 0xFD; i++ {
		m.regionMap[i] = regionEcho
	}
	// OAM: 0xFE00-0xFE9F, unusable: 0xFEA0-0xFEFF
	m.regionMap[0xFE] = regionOAM
	// IO, HRAM and IE: 0xFF00-0xFFFF
	m.regionMap[0xFF] = regionIO
}

// Reset clears RAM and devices to power-on values. The cartridge image is kept and
// battery-backed RAM survives.
func (m *MMU) Reset() {
	clear(m.vram[:])
	clear(m.wram[:])
	clear(m.oam[:])
	clear(m.io[:])
	clear(m.hram[:])
	m.ie = 0
	m.ifr = 0
	m.bootEnabled = m.bootROM != nil

	m.mapper.Reset()
	m.timer.SetSeed(0)
	m.joypad = Joypad{selects: 0x30}
	m.serial.Reset()
	m.APU.Reset()
}

// AttachVideo connects the PPU to the bus.
func (m *MMU) AttachVideo(v VideoPort) {
	m.video = v
}

// Cartridge returns the loaded cartridge.
func (m *MMU) Cartridge() *Cartridge {
	return m.cart
}

// Mapper returns the cartridge bank controller.
func (m *MMU) Mapper() *Mapper {
	return m.mapper
}

// BootROMMapped reports whether the boot ROM still overlays the cartridge.
func (m *MMU) BootROMMapped() bool {
	return m.bootEnabled
}

// Tick advances the timer, serial port and APU.
func (m *MMU) Tick(cycles int) {
	m.timer.Tick(cycles)
	m.serial.Tick(cycles)
	m.APU.Tick(cycles)
}

// SetTimerSeed initializes the internal timer divider.
func (m *MMU) SetTimerSeed(seed uint16) {
	m.timer.SetSeed(seed)
}

// RequestInterrupt sets the interrupt's bit in IF.
func (m *MMU) RequestInterrupt(interrupt addr.Interrupt) {
	m.ifr |= uint8(interrupt) & addr.InterruptMask
}

// PendingInterrupts returns IE & IF restricted to the five interrupt sources.
func (m *MMU) PendingInterrupts() uint8 {
	return m.ie & m.ifr & addr.InterruptMask
}

// SetJoypad replaces the host button state (1 = pressed). A newly pressed key
// requests the joypad interrupt.
func (m *MMU) SetJoypad(state byte) {
	if m.joypad.SetState(state) != 0 {
		m.RequestInterrupt(addr.JoypadInterrupt)
	}
}

// Joypad returns the host button state.
func (m *MMU) Joypad() byte {
	return m.joypad.Pressed()
}

// ReadVRAM reads video memory without access checks, for the PPU.
func (m *MMU) ReadVRAM(address uint16) byte {
	return m.vram[(address-addr.VRAMStart)&0x1FFF]
}

// ReadOAM reads sprite attribute memory without access checks, for the PPU.
func (m *MMU) ReadOAM(offset int) byte {
	return m.oam[offset]
}

func (m *MMU) Read(address uint16) byte {
	switch m.regionMap[address>>8] {
	case regionROM:
		if m.bootEnabled && address <= addr.BootROMEnd {
			return m.bootROM[address]
		}
		return m.mapper.Read(address)
	case regionExtRAM:
		return m.mapper.ReadRAM(address)
	case regionVRAM:
		if m.video != nil && !m.video.VRAMAccessible() {
			return 0xFF
		}
		return m.vram[address-addr.VRAMStart]
	case regionWRAM:
		return m.wram[address-addr.WRAMStart]
	case regionEcho:
		return m.wram[address-addr.EchoStart]
	case regionOAM:
		if address >= addr.UnusableStart {
			return 0xFF
		}
		if m.video != nil && !m.video.OAMAccessible() {
			return 0xFF
		}
		return m.oam[address-addr.OAMStart]
	default:
		return m.readIO(address)
	}
}

func (m *MMU) readIO(address uint16) byte {
	switch {
	case address == addr.IE:
		return m.ie
	case address >= addr.HRAMStart:
		return m.hram[address-addr.HRAMStart]
	case address == addr.P1:
		return m.joypad.Read()
	case address == addr.SB || address == addr.SC:
		return m.serial.Read(address)
	case address >= addr.DIV && address <= addr.TAC:
		return m.timer.Read(address)
	case address == addr.IF:
		// the upper 3 bits of IF are unused and always read as 1
		return m.ifr | 0xE0
	case address >= addr.AudioStart && address <= addr.AudioEnd:
		return m.APU.ReadRegister(address)
	case address >= addr.LCDC && address <= addr.WX && address != addr.DMA:
		if m.video != nil {
			return m.video.ReadRegister(address)
		}
		return m.io[address-addr.IOStart]
	case address == addr.DMA:
		return m.io[address-addr.IOStart]
	default:
		// unmapped I/O
		return 0xFF
	}
}

func (m *MMU) Write(address uint16, value byte) {
	switch m.regionMap[address>>8] {
	case regionROM:
		m.mapper.HandleControlWrite(address, value)
	case regionExtRAM:
		m.mapper.WriteRAM(address, value)
	case regionVRAM:
		if m.video != nil && !m.video.VRAMAccessible() {
			return
		}
		m.vram[address-addr.VRAMStart] = value
	case regionWRAM:
		m.wram[address-addr.WRAMStart] = value
	case regionEcho:
		m.wram[address-addr.EchoStart] = value
	case regionOAM:
		if address >= addr.UnusableStart {
			return
		}
		if m.video != nil && !m.video.OAMAccessible() {
			return
		}
		m.oam[address-addr.OAMStart] = value
	default:
		m.writeIO(address, value)
	}
}

func (m *MMU) writeIO(address uint16, value byte) {
	switch {
	case address == addr.IE:
		m.ie = value
	case address >= addr.HRAMStart:
		m.hram[address-addr.HRAMStart] = value
	case address == addr.P1:
		m.joypad.Write(value)
	case address == addr.SB || address == addr.SC:
		m.serial.Write(address, value)
	case address >= addr.DIV && address <= addr.TAC:
		m.timer.Write(address, value)
	case address == addr.IF:
		m.ifr = value & addr.InterruptMask
	case address >= addr.AudioStart && address <= addr.AudioEnd:
		m.APU.WriteRegister(address, value)
	case address == addr.DMA:
		m.io[address-addr.IOStart] = value
		m.dmaTransfer(value)
	case address >= addr.LCDC && address <= addr.WX:
		if m.video != nil {
			m.video.WriteRegister(address, value)
			return
		}
		m.io[address-addr.IOStart] = value
	case address == addr.BootROMDisable:
		if value != 0 && m.bootEnabled {
			m.bootEnabled = false
			m.logger.Debug("boot rom unmapped")
		}
	}
}

// dmaTransfer copies 160 bytes from value<<8 into OAM at once. The source is read
// without PPU access checks.
func (m *MMU) dmaTransfer(value byte) {
	source := uint16(value) << 8
	for i := range uint16(addr.OAMSize) {
		m.oam[i] = m.dmaRead(source + i)
	}
}

func (m *MMU) dmaRead(address uint16) byte {
	switch m.regionMap[address>>8] {
	case regionVRAM:
		return m.vram[address-addr.VRAMStart]
	case regionOAM, regionIO:
		// sources above 0xDFFF alias echo RAM on DMG
		return m.wram[(address-addr.EchoStart)&0x1FFF]
	default:
		return m.Read(address)
	}
}

// State captures bus memory and the devices it owns.
func (m *MMU) State() State {
	return State{
		VRAM:        append([]byte(nil), m.vram[:]...),
		WRAM:        append([]byte(nil), m.wram[:]...),
		OAM:         append([]byte(nil), m.oam[:]...),
		IO:          append([]byte(nil), m.io[:]...),
		HRAM:        append([]byte(nil), m.hram[:]...),
		IE:          m.ie,
		IF:          m.ifr,
		BootEnabled: m.bootEnabled,
		Mapper:      m.mapper.State(),
		Timer:       m.timer.State(),
		Joypad:      m.joypad.State(),
		Serial:      m.serial.State(),
		APU:         m.APU.State(),
	}
}

// Validate checks that a state fits this bus without applying it.
func (s State) Validate() error {
	sizes := []struct {
		name      string
		got, want int
	}{
		{"vram", len(s.VRAM), 0x2000},
		{"wram", len(s.WRAM), 0x2000},
		{"oam", len(s.OAM), addr.OAMSize},
		{"io", len(s.IO), 0x80},
		{"hram", len(s.HRAM), 0x7F},
	}
	for _, sz := range sizes {
		if sz.got != sz.want {
			return errors.Errorf("%s is %d bytes, want %d", sz.name, sz.got, sz.want)
		}
	}
	return nil
}

// Restore applies a state captured by State. It fails without side effects when
// the state does not fit this bus or cartridge.
func (m *MMU) Restore(s State) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.BootEnabled && m.bootROM == nil {
		return errors.New("state has the boot rom mapped but none is loaded")
	}
	if err := m.mapper.Restore(s.Mapper); err != nil {
		return errors.Wrap(err, "restoring mapper")
	}
	copy(m.vram[:], s.VRAM)
	copy(m.wram[:], s.WRAM)
	copy(m.oam[:], s.OAM)
	copy(m.io[:], s.IO)
	copy(m.hram[:], s.HRAM)
	m.ie = s.IE
	m.ifr = s.IF & addr.InterruptMask
	m.bootEnabled = s.BootEnabled
	m.timer.Restore(s.Timer)
	m.joypad.Restore(s.Joypad)
	m.serial.Restore(s.Serial)
	m.APU.Restore(s.APU)
	return nil
}

// LogWarnings reports cartridge load problems on the diagnostic logger.
func (m *MMU) LogWarnings() {
	for _, w := range m.cart.Warnings() {
		m.logger.Warn("cartridge", "title", m.cart.Title(), "problem", w)
	}
	info := m.cart.Info()
	m.logger.Info("cartridge loaded",
		"title", info.Title,
		"type", info.TypeName,
		"mapper", info.Kind.String(),
		"rom_banks", info.ROMBanks,
		"ram_size", fmt.Sprintf("0x%04X", info.RAMSize),
	)
}
