package cpu

import (
	"fmt"

	"github.com/valerio/jeebie-core/jeebie/bit"
)

var (
	opcodeNames   [256]string
	opcodeNamesCB [256]string
)

// irregular mnemonics that do not follow the register grid
var namedOpcodes = map[uint8]string{
	0x00: "NOP", 0x08: "LD (nn),SP", 0x10: "STOP", 0x18: "JR e",
	0x02: "LD (BC),A", 0x12: "LD (DE),A", 0x22: "LD (HL+),A", 0x32: "LD (HL-),A",
	0x0A: "LD A,(BC)", 0x1A: "LD A,(DE)", 0x2A: "LD A,(HL+)", 0x3A: "LD A,(HL-)",
	0x07: "RLCA", 0x0F: "RRCA", 0x17: "RLA", 0x1F: "RRA",
	0x27: "DAA", 0x2F: "CPL", 0x37: "SCF", 0x3F: "CCF",
	0x76: "HALT", 0xC3: "JP nn", 0xC9: "RET", 0xCB: "PREFIX CB", 0xCD: "CALL nn",
	0xD9: "RETI", 0xE0: "LDH (n),A", 0xE2: "LD (C),A", 0xE8: "ADD SP,e", 0xE9: "JP HL",
	0xEA: "LD (nn),A", 0xF0: "LDH A,(n)", 0xF2: "LD A,(C)", 0xF3: "DI",
	0xF8: "LD HL,SP+e", 0xF9: "LD SP,HL", 0xFA: "LD A,(nn)", 0xFB: "EI",
}

var (
	aluNames    = [8]string{"ADD A,", "ADC A,", "SUB ", "SBC A,", "AND ", "XOR ", "OR ", "CP "}
	rotateNames = [8]string{"RLC", "RRC", "RL", "RR", "SLA", "SRA", "SWAP", "SRL"}
	stackNames  = [4]string{"BC", "DE", "HL", "AF"}
)

func init() {
	for op := 0; op < 256; op++ {
		opcodeNames[op] = "ILLEGAL"
	}

	for op := 0x40; op < 0x80; op++ {
		opcodeNames[op] = fmt.Sprintf("LD %s,%s", regNames[op>>3&7], regNames[op&7])
	}
	for op := 0x80; op < 0xC0; op++ {
		opcodeNames[op] = aluNames[op>>3&7] + regNames[op&7]
	}
	for r := 0; r < 8; r++ {
		opcodeNames[r<<3|0x04] = "INC " + regNames[r]
		opcodeNames[r<<3|0x05] = "DEC " + regNames[r]
		opcodeNames[r<<3|0x06] = fmt.Sprintf("LD %s,n", regNames[r])
		opcodeNames[0xC6|r<<3] = aluNames[r] + "n"
		opcodeNames[0xC7|r<<3] = fmt.Sprintf("RST 0x%02X", r*8)
	}
	for p := 0; p < 4; p++ {
		opcodeNames[p<<4|0x01] = fmt.Sprintf("LD %s,nn", pairNames[p])
		opcodeNames[p<<4|0x03] = "INC " + pairNames[p]
		opcodeNames[p<<4|0x0B] = "DEC " + pairNames[p]
		opcodeNames[p<<4|0x09] = "ADD HL," + pairNames[p]
		opcodeNames[0xC1|p<<4] = "POP " + stackNames[p]
		opcodeNames[0xC5|p<<4] = "PUSH " + stackNames[p]

		cc := conditionNames[p]
		opcodeNames[0x20|p<<3] = "JR " + cc + ",e"
		opcodeNames[0xC0|p<<3] = "RET " + cc
		opcodeNames[0xC2|p<<3] = "JP " + cc + ",nn"
		opcodeNames[0xC4|p<<3] = "CALL " + cc + ",nn"
	}
	for op, name := range namedOpcodes {
		opcodeNames[op] = name
	}
	for _, op := range illegalOpcodes {
		opcodeNames[op] = "ILLEGAL"
	}

	for op := 0; op < 256; op++ {
		n, r := op>>3&7, regNames[op&7]
		switch op >> 6 {
		case 0:
			opcodeNamesCB[op] = rotateNames[n] + " " + r
		case 1:
			opcodeNamesCB[op] = fmt.Sprintf("BIT %d,%s", n, r)
		case 2:
			opcodeNamesCB[op] = fmt.Sprintf("RES %d,%s", n, r)
		default:
			opcodeNamesCB[op] = fmt.Sprintf("SET %d,%s", n, r)
		}
	}
}

// OpcodeName returns the mnemonic of an opcode, from the CB-prefixed table when cb is set.
func OpcodeName(op uint8, cb bool) string {
	if cb {
		return opcodeNamesCB[op]
	}
	return opcodeNames[op]
}

// Disassemble describes the instruction at pc with its raw operand bytes.
func Disassemble(bus Bus, pc uint16) string {
	code := bus.Read(pc)

	// 0xCB is only ever used as a prefix for the next byte.
	if code == 0xCB {
		code = bus.Read(pc + 1)
		return fmt.Sprintf("0xCB%02X (%s)", code, opcodeNamesCB[code])
	}

	n := bus.Read(pc + 1)
	nn := bit.Combine(bus.Read(pc+2), n)
	return fmt.Sprintf("0x%02X (%s) n=0x%02X nn=0x%04X", code, opcodeNames[code], n, nn)
}
