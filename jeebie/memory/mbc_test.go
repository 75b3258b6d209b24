package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeROM builds an image of the given number of banks where every byte of a
// bank holds the bank number, with a valid header.
func makeROM(t *testing.T, cartType, romCode, ramCode uint8, banks int) *Cartridge {
	t.Helper()
	rom := make([]byte, banks*romBankSize)
	for i := range rom {
		rom[i] = uint8(i / romBankSize)
	}
	copy(rom[titleAddress:], "TESTROM")
	rom[cartridgeTypeAddress] = cartType
	rom[romSizeAddress] = romCode
	rom[ramSizeAddress] = ramCode
	rom[headerChecksumAddress] = headerChecksum(rom)

	cart, err := NewCartridgeWithData(rom)
	require.NoError(t, err)
	return cart
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func TestMBC1(t *testing.T) {
	t.Run("ROM bank 0 is fixed", func(t *testing.T) {
		m := NewMapper(makeROM(t, 0x01, 0x01, 0x00, 4), nil)
		m.HandleControlWrite(0x2000, 0x03)
		assert.Equal(t, uint8(0), m.Read(0x0000))
		assert.Equal(t, uint8(0), m.Read(0x3FFF))
	})

	t.Run("bank switching", func(t *testing.T) {
		m := NewMapper(makeROM(t, 0x01, 0x01, 0x00, 4), nil)

		tests := []struct {
			name  string
			write uint8
			want  uint8
		}{
			{"zero selects bank 1", 0x00, 1},
			{"bank 2", 0x02, 2},
			{"bank 3", 0x03, 3},
			{"only low 5 bits used", 0xE2, 2},
			{"wraps modulo bank count", 0x05, 1},
			{"0x20 low bits zero selects 1", 0x20, 1},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				m.HandleControlWrite(0x2000, tt.write)
				assert.Equal(t, tt.want, m.Read(0x4000))
				assert.Equal(t, int(tt.want), m.ROMBank())
			})
		}
	})

	t.Run("upper bits extend the bank number", func(t *testing.T) {
		m := NewMapper(makeROM(t, 0x01, 0x06, 0x00, 128), nil)
		m.HandleControlWrite(0x2000, 0x00)
		m.HandleControlWrite(0x4000, 0x01)
		assert.Equal(t, uint8(0x21), m.Read(0x4000), "bank 0x20 is unreachable, 0x21 is mapped instead")

		m.HandleControlWrite(0x2000, 0x05)
		m.HandleControlWrite(0x4000, 0x02)
		assert.Equal(t, uint8(0x45), m.Read(0x4000))
		assert.Equal(t, uint8(0x00), m.Read(0x0000), "mode 0 keeps bank 0 low")

		m.HandleControlWrite(0x6000, 0x01)
		assert.Equal(t, uint8(0x40), m.Read(0x0000), "mode 1 maps bank hi<<5 low")
	})

	t.Run("RAM banking", func(t *testing.T) {
		m := NewMapper(makeROM(t, 0x03, 0x00, 0x03, 2), nil)

		assert.Equal(t, uint8(0xFF), m.ReadRAM(0xA000), "disabled by default")
		m.WriteRAM(0xA000, 0x11)
		m.HandleControlWrite(0x0000, 0x0A)
		assert.Equal(t, uint8(0x00), m.ReadRAM(0xA000), "write while disabled is dropped")

		m.WriteRAM(0xA000, 0x42)
		assert.Equal(t, uint8(0x42), m.ReadRAM(0xA000))

		m.HandleControlWrite(0x4000, 0x02)
		assert.Equal(t, uint8(0x42), m.ReadRAM(0xA000), "mode 0 always uses RAM bank 0")

		m.HandleControlWrite(0x6000, 0x01)
		assert.Equal(t, uint8(0x00), m.ReadRAM(0xA000), "mode 1 selects RAM bank 2")
		m.WriteRAM(0xA000, 0x99)

		m.HandleControlWrite(0x6000, 0x00)
		assert.Equal(t, uint8(0x42), m.ReadRAM(0xA000))

		m.HandleControlWrite(0x0000, 0x00)
		assert.Equal(t, uint8(0xFF), m.ReadRAM(0xA000))
	})
}

func TestMBC1_SwitchToBankOne(t *testing.T) {
	cart := makeROM(t, 0x01, 0x00, 0x00, 2)
	mmu, err := NewWithCartridge(cart)
	require.NoError(t, err)

	mmu.Write(0x2000, 0x01)
	assert.Equal(t, cart.ReadByte(0x4000), mmu.Read(0x4000))
}

func TestMBC3(t *testing.T) {
	t.Run("no zero substitution", func(t *testing.T) {
		m := NewMapper(makeROM(t, 0x11, 0x02, 0x00, 8), nil)
		assert.Equal(t, uint8(1), m.Read(0x4000))

		m.HandleControlWrite(0x2000, 0x00)
		assert.Equal(t, uint8(0), m.Read(0x4000))

		m.HandleControlWrite(0x2000, 0x07)
		assert.Equal(t, uint8(7), m.Read(0x4000))

		m.HandleControlWrite(0x2000, 0x0A)
		assert.Equal(t, uint8(2), m.Read(0x4000), "wraps modulo bank count")
	})

	t.Run("RAM banks", func(t *testing.T) {
		m := NewMapper(makeROM(t, 0x13, 0x00, 0x03, 2), nil)
		m.HandleControlWrite(0x0000, 0x0A)
		for bank := uint8(0); bank < 4; bank++ {
			m.HandleControlWrite(0x4000, bank)
			m.WriteRAM(0xA123, 0x10+bank)
		}
		for bank := uint8(0); bank < 4; bank++ {
			m.HandleControlWrite(0x4000, bank)
			assert.Equal(t, 0x10+bank, m.ReadRAM(0xA123))
		}
		m.HandleControlWrite(0x4000, 0x05)
		assert.Equal(t, uint8(0xFF), m.ReadRAM(0xA123), "unmapped selector reads open bus")
	})

	t.Run("RTC latch and advance", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1_000_000, 0)}
		m := NewMapper(makeROM(t, 0x10, 0x00, 0x02, 2), clock)
		m.HandleControlWrite(0x0000, 0x0A)

		clock.now = clock.now.Add(26*time.Hour + 3*time.Minute + 7*time.Second)

		m.HandleControlWrite(0x4000, 0x08)
		assert.Equal(t, uint8(0), m.ReadRAM(0xA000), "nothing latched yet")

		m.HandleControlWrite(0x6000, 0x00)
		m.HandleControlWrite(0x6000, 0x01)

		regs := []uint8{}
		for sel := uint8(0x08); sel <= 0x0C; sel++ {
			m.HandleControlWrite(0x4000, sel)
			regs = append(regs, m.ReadRAM(0xA000))
		}
		assert.Equal(t, []uint8{7, 3, 2, 1, 0}, regs)

		clock.now = clock.now.Add(time.Minute)
		m.HandleControlWrite(0x4000, 0x09)
		assert.Equal(t, uint8(3), m.ReadRAM(0xA000), "latched copy does not move")
	})

	t.Run("RTC halt stops the clock", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(0, 0).Add(time.Hour)}
		m := NewMapper(makeROM(t, 0x0F, 0x00, 0x00, 2), clock)
		m.HandleControlWrite(0x0000, 0x0A)
		m.HandleControlWrite(0x4000, 0x0C)
		m.WriteRAM(0xA000, 0x40)

		clock.now = clock.now.Add(time.Hour)
		m.HandleControlWrite(0x6000, 0x00)
		m.HandleControlWrite(0x6000, 0x01)
		m.HandleControlWrite(0x4000, 0x0A)
		assert.Equal(t, uint8(0), m.ReadRAM(0xA000))
	})

	t.Run("day counter carry", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(0, 0).Add(time.Hour)}
		m := NewMapper(makeROM(t, 0x0F, 0x00, 0x00, 2), clock)
		m.HandleControlWrite(0x0000, 0x0A)

		clock.now = clock.now.Add(513 * 24 * time.Hour)
		m.HandleControlWrite(0x6000, 0x00)
		m.HandleControlWrite(0x6000, 0x01)

		m.HandleControlWrite(0x4000, 0x0B)
		assert.Equal(t, uint8(1), m.ReadRAM(0xA000))
		m.HandleControlWrite(0x4000, 0x0C)
		assert.Equal(t, uint8(0x80), m.ReadRAM(0xA000))
	})
}

func TestMapper_UnsupportedFallsBackToFlat(t *testing.T) {
	cart := makeROM(t, 0x19, 0x01, 0x00, 4)
	assert.Equal(t, MBCNone, cart.Info().Kind)
	assert.NotEmpty(t, cart.Warnings())

	m := NewMapper(cart, nil)
	m.HandleControlWrite(0x2000, 0x03)
	assert.Equal(t, uint8(1), m.Read(0x4000))
}

func TestMapper_BatteryRAM(t *testing.T) {
	m := NewMapper(makeROM(t, 0x03, 0x00, 0x02, 2), nil)
	require.True(t, m.HasBattery())

	m.HandleControlWrite(0x0000, 0x0A)
	m.WriteRAM(0xA010, 0x77)
	saved := m.BatteryRAM()

	m.Reset()
	m.HandleControlWrite(0x0000, 0x0A)
	assert.Equal(t, uint8(0x77), m.ReadRAM(0xA010), "battery RAM survives reset")

	other := NewMapper(makeROM(t, 0x03, 0x00, 0x02, 2), nil)
	require.NoError(t, other.LoadBatteryRAM(saved))
	other.HandleControlWrite(0x0000, 0x0A)
	assert.Equal(t, uint8(0x77), other.ReadRAM(0xA010))

	assert.Error(t, other.LoadBatteryRAM(make([]byte, 3)))
}
