package cpu

import "fmt"

// Reg names one of the 16 general purpose registers, V0-VF.
type Reg uint8

// Kind tags a decoded operation.
type Kind int

const (
	Cls Kind = iota
	Ret
	Sys
	Jmp
	Call
	Se
	Sne
	Sre
	Ld
	Add
	Mov
	Or
	And
	Xor
	Addr
	Subr
	Shr
	Subnr
	Shl
	Srne
	Ldi
	Jmpi
	Rand
	Draw
	Skp
	Sknp
	Movd
	Key
	Ldd
	Lds
	Addi
	Ldspr
	Bcd
	Str
	Read
)

// Op is a decoded operation. Only the fields relevant to the Kind are
// meaningful; the rest are left at their decoded nibble values.
type Op struct {
	Kind Kind
	X, Y Reg
	NNN  uint16
	KK   byte
	N    byte
}

// Decode maps a 16-bit instruction word onto an Op. It is a pure
// function of the four nibbles and touches no machine state. The
// second return value is false if no nibble pattern matches.
//
// Leading-nibble-0 words that are not CLS or RET decode to Sys; the
// execution engine reports those as unimplemented rather than failing
// the decode.
func Decode(code uint16) (Op, bool) {
	nib3 := byte(code>>12) & 0x0f
	nib1 := byte(code>>4) & 0x0f
	nib0 := byte(code) & 0x0f

	op := Op{
		X:   Reg(byte(code>>8) & 0x0f),
		Y:   Reg(nib1),
		NNN: code & 0x0fff,
		KK:  byte(code),
		N:   nib0,
	}

	switch nib3 {
	case 0x0:
		switch code {
		case 0x00e0:
			op.Kind = Cls
		case 0x00ee:
			op.Kind = Ret
		default:
			op.Kind = Sys
		}
	case 0x1:
		op.Kind = Jmp
	case 0x2:
		op.Kind = Call
	case 0x3:
		op.Kind = Se
	case 0x4:
		op.Kind = Sne
	case 0x5:
		if nib0 != 0 {
			return Op{}, false
		}
		op.Kind = Sre
	case 0x6:
		op.Kind = Ld
	case 0x7:
		op.Kind = Add
	case 0x8:
		switch nib0 {
		case 0x0:
			op.Kind = Mov
		case 0x1:
			op.Kind = Or
		case 0x2:
			op.Kind = And
		case 0x3:
			op.Kind = Xor
		case 0x4:
			op.Kind = Addr
		case 0x5:
			op.Kind = Subr
		case 0x6:
			// the shift encodings swap the operand roles: the
			// middle nibble is the source, the high nibble the
			// destination
			op.Kind = Shr
			op.X, op.Y = op.Y, op.X
		case 0x7:
			op.Kind = Subnr
		case 0xe:
			op.Kind = Shl
			op.X, op.Y = op.Y, op.X
		default:
			return Op{}, false
		}
	case 0x9:
		if nib0 != 0 {
			return Op{}, false
		}
		op.Kind = Srne
	case 0xa:
		op.Kind = Ldi
	case 0xb:
		op.Kind = Jmpi
	case 0xc:
		op.Kind = Rand
	case 0xd:
		op.Kind = Draw
	case 0xe:
		switch op.KK {
		case 0x9e:
			op.Kind = Skp
		case 0xa1:
			op.Kind = Sknp
		default:
			return Op{}, false
		}
	case 0xf:
		switch op.KK {
		case 0x07:
			op.Kind = Movd
		case 0x0a:
			op.Kind = Key
		case 0x15:
			op.Kind = Ldd
		case 0x18:
			op.Kind = Lds
		case 0x1e:
			op.Kind = Addi
		case 0x29:
			op.Kind = Ldspr
		case 0x33:
			op.Kind = Bcd
		case 0x55:
			op.Kind = Str
		case 0x65:
			op.Kind = Read
		default:
			return Op{}, false
		}
	}

	return op, true
}

func (op Op) String() string {
	switch op.Kind {
	case Cls:
		return "cls"
	case Ret:
		return "ret"
	case Sys:
		return fmt.Sprintf("sys %#03x", op.NNN)
	case Jmp:
		return fmt.Sprintf("jmp %#03x", op.NNN)
	case Call:
		return fmt.Sprintf("call %#03x", op.NNN)
	case Se:
		return fmt.Sprintf("se v%x, %#02x", op.X, op.KK)
	case Sne:
		return fmt.Sprintf("sne v%x, %#02x", op.X, op.KK)
	case Sre:
		return fmt.Sprintf("sre v%x, v%x", op.X, op.Y)
	case Ld:
		return fmt.Sprintf("ld v%x, %#02x", op.X, op.KK)
	case Add:
		return fmt.Sprintf("add v%x, %#02x", op.X, op.KK)
	case Mov:
		return fmt.Sprintf("mov v%x, v%x", op.X, op.Y)
	case Or:
		return fmt.Sprintf("or v%x, v%x", op.X, op.Y)
	case And:
		return fmt.Sprintf("and v%x, v%x", op.X, op.Y)
	case Xor:
		return fmt.Sprintf("xor v%x, v%x", op.X, op.Y)
	case Addr:
		return fmt.Sprintf("addr v%x, v%x", op.X, op.Y)
	case Subr:
		return fmt.Sprintf("subr v%x, v%x", op.X, op.Y)
	case Shr:
		return fmt.Sprintf("shr v%x, v%x", op.X, op.Y)
	case Subnr:
		return fmt.Sprintf("subnr v%x, v%x", op.X, op.Y)
	case Shl:
		return fmt.Sprintf("shl v%x, v%x", op.X, op.Y)
	case Srne:
		return fmt.Sprintf("srne v%x, v%x", op.X, op.Y)
	case Ldi:
		return fmt.Sprintf("ldi %#03x", op.NNN)
	case Jmpi:
		return fmt.Sprintf("jmpi %#03x", op.NNN)
	case Rand:
		return fmt.Sprintf("rand v%x, %#02x", op.X, op.KK)
	case Draw:
		return fmt.Sprintf("draw v%x, v%x, %d", op.X, op.Y, op.N)
	case Skp:
		return fmt.Sprintf("skp v%x", op.X)
	case Sknp:
		return fmt.Sprintf("sknp v%x", op.X)
	case Movd:
		return fmt.Sprintf("movd v%x", op.X)
	case Key:
		return fmt.Sprintf("key v%x", op.X)
	case Ldd:
		return fmt.Sprintf("ldd v%x", op.X)
	case Lds:
		return fmt.Sprintf("lds v%x", op.X)
	case Addi:
		return fmt.Sprintf("addi v%x", op.X)
	case Ldspr:
		return fmt.Sprintf("ldspr v%x", op.X)
	case Bcd:
		return fmt.Sprintf("bcd v%x", op.X)
	case Str:
		return fmt.Sprintf("str v%x", op.X)
	case Read:
		return fmt.Sprintf("read v%x", op.X)
	}
	return fmt.Sprintf("op(%d)", int(op.Kind))
}
