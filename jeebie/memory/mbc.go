package memory

import (
	"time"

	"github.com/pkg/errors"
)

// Clock is the time source of the MBC3 real-time clock.
type Clock interface {
	Now() time.Time
}

type systemClockFunc func() time.Time

func (s systemClockFunc) Now() time.Time {
	return s()
}

// SystemClock reads the host wall clock.
var SystemClock Clock = systemClockFunc(time.Now)

// RTC register indexes, selected by writing 0x08-0x0C to 0x4000-0x5FFF.
const (
	rtcSeconds = iota
	rtcMinutes
	rtcHours
	rtcDaysLow
	rtcDaysHigh
)

const (
	rtcHaltBit  = 6
	rtcCarryBit = 7
)

var rtcMasks = [5]uint8{0x3F, 0x3F, 0x1F, 0xFF, 0xC1}

// RTCState is the MBC3 clock: the running registers, the copy visible to the CPU
// after a latch, and the instant the running registers were last brought up to date.
type RTCState struct {
	Live    [5]uint8
	Latched [5]uint8
	// LastUpdate is in Unix nanoseconds.
	LastUpdate int64
}

// MapperState is the serializable part of a Mapper.
type MapperState struct {
	RAM        []byte
	RAMEnabled bool
	ROMBankLo  uint8
	ROMBankHi  uint8
	RAMBank    uint8
	Mode       uint8
	LatchArmed bool
	RTC        RTCState
}

// Mapper translates CPU addresses into cartridge ROM and RAM offsets. The
// controller variant is chosen once from the header; behavior switches on Kind.
//
// MBC1 quirks:
//   - a raw value of 0 in the low 5 ROM bits selects bank 1 (so 0x20 selects 0x21)
//   - banks wrap modulo the ROM bank count
//   - mode 1 maps bank (hi<<5) at 0x0000-0x3FFF and enables RAM banking
//
// MBC3 takes the full 7-bit bank number without any zero substitution and exposes
// the real-time clock registers through the RAM window.
type Mapper struct {
	Kind MBCKind

	cart     *Cartridge
	romBanks int
	ram      []byte
	battery  bool
	hasRTC   bool
	clock    Clock

	ramEnabled bool
	romBankLo  uint8
	romBankHi  uint8
	ramBank    uint8
	mode       uint8
	latchArmed bool
	rtc        RTCState
}

// NewMapper builds the controller described by the cartridge header. A nil clock
// selects the system clock.
func NewMapper(cart *Cartridge, clock Clock) *Mapper {
	if clock == nil {
		clock = SystemClock
	}
	info := cart.Info()
	m := &Mapper{
		Kind:     info.Kind,
		cart:     cart,
		romBanks: info.ROMBanks,
		ram:      make([]byte, info.RAMSize),
		battery:  info.Battery,
		hasRTC:   info.Kind == MBC3 && info.Timer,
		clock:    clock,
	}
	m.Reset()
	return m
}

// Reset returns the bank registers to power-on values. Battery-backed RAM and the
// RTC keep their contents.
func (m *Mapper) Reset() {
	m.ramEnabled = false
	m.romBankLo = 1
	m.romBankHi = 0
	m.ramBank = 0
	m.mode = 0
	m.latchArmed = false
	if !m.battery {
		clear(m.ram)
	}
	if m.rtc.LastUpdate == 0 {
		m.rtc.LastUpdate = m.clock.Now().UnixNano()
	}
}

// Read dispatches a CPU read in 0x0000-0x7FFF or 0xA000-0xBFFF.
func (m *Mapper) Read(addr uint16) uint8 {
	switch {
	case addr < 0x8000:
		return m.cart.ReadByte(m.TranslateROM(addr))
	case addr >= 0xA000 && addr <= 0xBFFF:
		return m.ReadRAM(addr)
	default:
		return 0xFF
	}
}

// Write dispatches a CPU write in 0x0000-0x7FFF or 0xA000-0xBFFF.
func (m *Mapper) Write(addr uint16, value uint8) {
	switch {
	case addr < 0x8000:
		m.HandleControlWrite(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		m.WriteRAM(addr, value)
	}
}

// TranslateROM maps a CPU address in 0x0000-0x7FFF to an absolute ROM offset.
func (m *Mapper) TranslateROM(addr uint16) int {
	offset := int(addr & 0x3FFF)
	bank := 0

	switch m.Kind {
	case MBCNone:
		if addr >= 0x4000 {
			bank = 1
		}
	case MBC1:
		if addr < 0x4000 {
			if m.mode == 1 {
				bank = int(m.romBankHi) << 5
			}
		} else {
			lo := m.romBankLo & 0x1F
			if lo == 0 {
				lo = 1
			}
			bank = int(m.romBankHi)<<5 | int(lo)
		}
	case MBC3:
		if addr >= 0x4000 {
			bank = int(m.romBankLo & 0x7F)
		}
	}

	return (bank%m.romBanks)*romBankSize + offset
}

// ROMBank returns the bank currently mapped at 0x4000-0x7FFF.
func (m *Mapper) ROMBank() int {
	return m.TranslateROM(0x4000) / romBankSize
}

// HandleControlWrite updates the bank registers from a write to 0x0000-0x7FFF.
func (m *Mapper) HandleControlWrite(addr uint16, value uint8) {
	switch m.Kind {
	case MBC1:
		switch {
		case addr <= 0x1FFF:
			m.ramEnabled = value&0x0F == 0x0A
		case addr <= 0x3FFF:
			m.romBankLo = value & 0x1F
		case addr <= 0x5FFF:
			m.romBankHi = value & 0x03
		default:
			m.mode = value & 0x01
		}
	case MBC3:
		switch {
		case addr <= 0x1FFF:
			m.ramEnabled = value&0x0F == 0x0A
		case addr <= 0x3FFF:
			m.romBankLo = value & 0x7F
		case addr <= 0x5FFF:
			m.ramBank = value & 0x0F
		default:
			if m.latchArmed && value == 0x01 && m.hasRTC {
				m.advanceRTC()
				m.rtc.Latched = m.rtc.Live
			}
			m.latchArmed = value == 0x00
		}
	}
}

// ramOffset returns the index into external RAM for addr, or -1 when nothing is mapped.
func (m *Mapper) ramOffset(addr uint16) int {
	if len(m.ram) == 0 {
		return -1
	}
	bank := 0
	switch m.Kind {
	case MBC1:
		if m.mode == 1 {
			bank = int(m.romBankHi)
		}
	case MBC3:
		if m.ramBank > 0x03 {
			return -1
		}
		bank = int(m.ramBank)
	}
	return (bank*ramBankSize + int(addr-0xA000)) % len(m.ram)
}

func (m *Mapper) accessible() bool {
	// ROM+RAM carts have no enable register.
	return m.Kind == MBCNone || m.ramEnabled
}

func (m *Mapper) rtcSelected() (int, bool) {
	if m.Kind != MBC3 || !m.hasRTC || m.ramBank < 0x08 || m.ramBank > 0x0C {
		return 0, false
	}
	return int(m.ramBank - 0x08), true
}

// ReadRAM reads external RAM or a latched RTC register. Disabled or unmapped RAM reads 0xFF.
func (m *Mapper) ReadRAM(addr uint16) uint8 {
	if !m.accessible() {
		return 0xFF
	}
	if reg, ok := m.rtcSelected(); ok {
		return m.rtc.Latched[reg]
	}
	offset := m.ramOffset(addr)
	if offset < 0 {
		return 0xFF
	}
	return m.ram[offset]
}

// WriteRAM writes external RAM or a live RTC register. Writes while disabled are dropped.
func (m *Mapper) WriteRAM(addr uint16, value uint8) {
	if !m.accessible() {
		return
	}
	if reg, ok := m.rtcSelected(); ok {
		m.advanceRTC()
		m.rtc.Live[reg] = value & rtcMasks[reg]
		if reg == rtcSeconds {
			m.rtc.LastUpdate = m.clock.Now().UnixNano()
		}
		return
	}
	offset := m.ramOffset(addr)
	if offset < 0 {
		return
	}
	m.ram[offset] = value
}

// advanceRTC brings the live registers up to the clock's current time. Only whole
// elapsed seconds are consumed, the remainder carries into the next update.
func (m *Mapper) advanceRTC() {
	now := m.clock.Now().UnixNano()
	if bitHigh(m.rtc.Live[rtcDaysHigh], rtcHaltBit) {
		m.rtc.LastUpdate = now
		return
	}

	elapsed := (now - m.rtc.LastUpdate) / int64(time.Second)
	if elapsed <= 0 {
		return
	}
	m.rtc.LastUpdate += elapsed * int64(time.Second)

	r := &m.rtc.Live
	total := elapsed + int64(r[rtcSeconds])
	r[rtcSeconds] = uint8(total % 60)
	total = total/60 + int64(r[rtcMinutes])
	r[rtcMinutes] = uint8(total % 60)
	total = total/60 + int64(r[rtcHours])
	r[rtcHours] = uint8(total % 24)

	days := total/24 + int64(r[rtcDaysLow]) + int64(r[rtcDaysHigh]&0x01)<<8
	high := r[rtcDaysHigh] & 0xC0
	if days > 0x1FF {
		high |= 1 << rtcCarryBit
		days &= 0x1FF
	}
	r[rtcDaysLow] = uint8(days)
	r[rtcDaysHigh] = high | uint8(days>>8)&0x01
}

func bitHigh(value uint8, index uint8) bool {
	return value&(1<<index) != 0
}

// HasBattery reports whether external RAM should be persisted by the host.
func (m *Mapper) HasBattery() bool {
	return m.battery && len(m.ram) > 0
}

// BatteryRAM returns a copy of external RAM.
func (m *Mapper) BatteryRAM() []byte {
	return append([]byte(nil), m.ram...)
}

// LoadBatteryRAM restores external RAM from a previous BatteryRAM call.
func (m *Mapper) LoadBatteryRAM(data []byte) error {
	if len(data) != len(m.ram) {
		return errors.Errorf("battery ram is %d bytes, cartridge has %d", len(data), len(m.ram))
	}
	copy(m.ram, data)
	return nil
}

// State captures the mapper registers, RAM and RTC.
func (m *Mapper) State() MapperState {
	return MapperState{
		RAM:        m.BatteryRAM(),
		RAMEnabled: m.ramEnabled,
		ROMBankLo:  m.romBankLo,
		ROMBankHi:  m.romBankHi,
		RAMBank:    m.ramBank,
		Mode:       m.mode,
		LatchArmed: m.latchArmed,
		RTC:        m.rtc,
	}
}

// Restore loads a state captured by State.
func (m *Mapper) Restore(s MapperState) error {
	if len(s.RAM) != len(m.ram) {
		return errors.Errorf("state carries %d bytes of cartridge ram, cartridge has %d", len(s.RAM), len(m.ram))
	}
	copy(m.ram, s.RAM)
	m.ramEnabled = s.RAMEnabled
	m.romBankLo = s.ROMBankLo
	m.romBankHi = s.ROMBankHi
	m.ramBank = s.RAMBank
	m.mode = s.Mode
	m.latchArmed = s.LatchArmed
	m.rtc = s.RTC
	return nil
}
