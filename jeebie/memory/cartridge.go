package memory

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

const (
	romBankSize = 0x4000
	ramBankSize = 0x2000

	// HeaderEnd is the first byte after the cartridge header; shorter images cannot be parsed.
	HeaderEnd = 0x150
	minROMLen = 2 * romBankSize
)

const (
	titleAddress           = 0x134
	titleEnd               = 0x144
	cgbFlagAddress         = 0x143
	newLicenseCodeAddress  = 0x144
	sgbFlagAddress         = 0x146
	cartridgeTypeAddress   = 0x147
	romSizeAddress         = 0x148
	ramSizeAddress         = 0x149
	destinationCodeAddress = 0x14A
	oldLicenseCodeAddress  = 0x14B
	versionNumberAddress   = 0x14C
	headerChecksumAddress  = 0x14D
	globalChecksumAddress  = 0x14E
)

// ErrROMTooSmall is returned when an image cannot even hold a cartridge header.
var ErrROMTooSmall = errors.New("rom image smaller than cartridge header")

// MBCKind identifies the bank controller emulated for a cartridge.
type MBCKind uint8

const (
	MBCNone MBCKind = iota
	MBC1
	MBC3
)

func (k MBCKind) String() string {
	switch k {
	case MBC1:
		return "MBC1"
	case MBC3:
		return "MBC3"
	default:
		return "none"
	}
}

type cartType struct {
	name    string
	kind    MBCKind
	ram     bool
	battery bool
	timer   bool
	rumble  bool
	// supported is false for controllers this core degrades to the flat mapping.
	supported bool
}

var cartTypes = map[uint8]cartType{
	0x00: {name: "ROM ONLY", kind: MBCNone, supported: true},
	0x01: {name: "MBC1", kind: MBC1, supported: true},
	0x02: {name: "MBC1+RAM", kind: MBC1, ram: true, supported: true},
	0x03: {name: "MBC1+RAM+BATTERY", kind: MBC1, ram: true, battery: true, supported: true},
	0x05: {name: "MBC2"},
	0x06: {name: "MBC2+BATTERY", battery: true},
	0x08: {name: "ROM+RAM", ram: true, supported: true},
	0x09: {name: "ROM+RAM+BATTERY", ram: true, battery: true, supported: true},
	0x0F: {name: "MBC3+TIMER+BATTERY", kind: MBC3, timer: true, battery: true, supported: true},
	0x10: {name: "MBC3+TIMER+RAM+BATTERY", kind: MBC3, timer: true, ram: true, battery: true, supported: true},
	0x11: {name: "MBC3", kind: MBC3, supported: true},
	0x12: {name: "MBC3+RAM", kind: MBC3, ram: true, supported: true},
	0x13: {name: "MBC3+RAM+BATTERY", kind: MBC3, ram: true, battery: true, supported: true},
	0x19: {name: "MBC5"},
	0x1A: {name: "MBC5+RAM", ram: true},
	0x1B: {name: "MBC5+RAM+BATTERY", ram: true, battery: true},
	0x1C: {name: "MBC5+RUMBLE", rumble: true},
	0x1D: {name: "MBC5+RUMBLE+RAM", rumble: true, ram: true},
	0x1E: {name: "MBC5+RUMBLE+RAM+BATTERY", rumble: true, ram: true, battery: true},
}

// ramBanksByCode maps the header RAM size code to 8 KiB banks. Code 0x01 is an
// unofficial 2 KiB size, rounded up to a full bank.
var ramBanksByCode = map[uint8]int{0x00: 0, 0x01: 1, 0x02: 1, 0x03: 4, 0x04: 16, 0x05: 8}

// Info is the decoded cartridge header.
type Info struct {
	Title          string
	TypeCode       uint8
	TypeName       string
	Kind           MBCKind
	Supported      bool
	ROMSizeCode    uint8
	ROMBanks       int
	RAMSizeCode    uint8
	RAMBanks       int
	RAMSize        int
	Battery        bool
	Timer          bool
	Rumble         bool
	CGBSupported   bool
	SGBSupported   bool
	Japanese       bool
	OldLicensee    uint8
	NewLicensee    string
	Version        uint8
	HeaderChecksum uint8
	GlobalChecksum uint16
	ChecksumValid  bool
}

// Cartridge is an immutable ROM image with its parsed header.
type Cartridge struct {
	data     []byte
	info     Info
	warnings []string
}

// NewCartridge creates a blank 32 KiB ROM-only cartridge, useful for tests and debugging.
func NewCartridge() *Cartridge {
	cart, _ := NewCartridgeWithData(make([]byte, minROMLen))
	return cart
}

// NewCartridgeWithData parses the header of a ROM image. Header problems are recorded
// as warnings and the cartridge degrades to safe defaults; only an image too short to
// hold a header is rejected.
func NewCartridgeWithData(bytes []byte) (*Cartridge, error) {
	if len(bytes) < HeaderEnd {
		return nil, errors.Wrapf(ErrROMTooSmall, "got %d bytes, need at least %d", len(bytes), HeaderEnd)
	}

	size := len(bytes)
	if size < minROMLen {
		size = minROMLen
	}
	if rem := size % romBankSize; rem != 0 {
		size += romBankSize - rem
	}

	cart := &Cartridge{data: make([]byte, size)}
	copy(cart.data, bytes)
	if size != len(bytes) {
		cart.warn(fmt.Sprintf("rom image of %d bytes padded to %d", len(bytes), size))
	}

	cart.parseHeader()
	return cart, nil
}

func (c *Cartridge) warn(msg string) {
	c.warnings = append(c.warnings, msg)
}

func (c *Cartridge) parseHeader() {
	d := c.data
	info := Info{
		Title:          cleanGameboyTitle(d[titleAddress:titleEnd]),
		TypeCode:       d[cartridgeTypeAddress],
		ROMSizeCode:    d[romSizeAddress],
		RAMSizeCode:    d[ramSizeAddress],
		CGBSupported:   d[cgbFlagAddress] == 0x80 || d[cgbFlagAddress] == 0xC0,
		SGBSupported:   d[sgbFlagAddress] == 0x03,
		Japanese:       d[destinationCodeAddress] == 0x00,
		OldLicensee:    d[oldLicenseCodeAddress],
		NewLicensee:    strings.TrimRight(string(d[newLicenseCodeAddress:newLicenseCodeAddress+2]), "\x00"),
		Version:        d[versionNumberAddress],
		HeaderChecksum: d[headerChecksumAddress],
		GlobalChecksum: uint16(d[globalChecksumAddress])<<8 | uint16(d[globalChecksumAddress+1]),
	}

	ct, known := cartTypes[info.TypeCode]
	switch {
	case !known:
		info.TypeName = fmt.Sprintf("UNKNOWN(0x%02X)", info.TypeCode)
		c.warn(fmt.Sprintf("unknown cartridge type 0x%02X, using flat ROM mapping", info.TypeCode))
	case !ct.supported:
		info.TypeName = ct.name
		c.warn(fmt.Sprintf("unsupported cartridge type %s, using flat ROM mapping", ct.name))
	default:
		info.TypeName = ct.name
	}
	if known && ct.supported {
		info.Kind = ct.kind
		info.Supported = true
	}
	info.Battery = ct.battery
	info.Timer = ct.timer
	info.Rumble = ct.rumble

	info.ROMBanks = len(c.data) / romBankSize
	if info.ROMSizeCode <= 0x08 {
		if declared := 2 << info.ROMSizeCode; declared != info.ROMBanks {
			c.warn(fmt.Sprintf("header declares %d rom banks, image holds %d", declared, info.ROMBanks))
		}
	} else {
		c.warn(fmt.Sprintf("invalid rom size code 0x%02X", info.ROMSizeCode))
	}

	banks, ok := ramBanksByCode[info.RAMSizeCode]
	if !ok {
		c.warn(fmt.Sprintf("invalid ram size code 0x%02X, assuming no ram", info.RAMSizeCode))
	}
	if info.Kind == MBCNone && banks > 1 {
		banks = 1
	}
	info.RAMBanks = banks
	info.RAMSize = banks * ramBankSize

	info.ChecksumValid = headerChecksum(d) == info.HeaderChecksum
	if !info.ChecksumValid {
		c.warn(fmt.Sprintf("header checksum mismatch: header 0x%02X, computed 0x%02X", info.HeaderChecksum, headerChecksum(d)))
	}

	c.info = info
}

// headerChecksum computes the boot ROM's check over 0x134-0x14C.
func headerChecksum(data []byte) uint8 {
	var sum uint8
	for i := titleAddress; i < headerChecksumAddress; i++ {
		sum = sum - data[i] - 1
	}
	return sum
}

// Info returns the decoded header.
func (c *Cartridge) Info() Info {
	return c.info
}

// Title returns the cleaned-up game title.
func (c *Cartridge) Title() string {
	return c.info.Title
}

// Warnings lists the problems found while loading the image.
func (c *Cartridge) Warnings() []string {
	return append([]string(nil), c.warnings...)
}

// Len returns the size of the (padded) ROM image.
func (c *Cartridge) Len() int {
	return len(c.data)
}

// ReadByte reads the byte at an absolute ROM offset. Offsets past the image read 0xFF.
func (c *Cartridge) ReadByte(offset int) uint8 {
	if offset < 0 || offset >= len(c.data) {
		return 0xFF
	}
	return c.data[offset]
}

// cleanGameboyTitle converts NUL padding to spaces, replaces non-printable characters and trims.
func cleanGameboyTitle(titleBytes []byte) string {
	runes := make([]rune, 0, len(titleBytes))
	for _, b := range titleBytes {
		r := rune(b)
		if r == 0 {
			r = ' '
		} else if r >= 0x80 || !unicode.IsPrint(r) {
			r = '?'
		}
		runes = append(runes, r)
	}

	title := strings.TrimSpace(string(runes))
	if title == "" {
		return "(Untitled)"
	}

	return title
}
