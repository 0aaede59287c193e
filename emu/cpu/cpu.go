// Package cpu is the core of the emulator: the machine state, the
// fetch/decode/execute engine and the 60Hz timer clock. Presentation
// concerns (window, buzzer, keypad) sit behind the Display, Sound and
// Input interfaces and are supplied by the caller.
package cpu

import (
	"fmt"
	"math/rand"
)

const (
	// LoadOffset is where programs are copied into memory and where
	// the program counter starts after a successful load.
	LoadOffset = 0x200

	// RAMBytes is the size of addressable memory.
	RAMBytes = 0x1000

	// StackDepth is the call stack capacity.
	StackDepth = 0x20

	// MaxProgramBytes is the largest program Load accepts.
	MaxProgramBytes = RAMBytes - LoadOffset

	// DisplayWidth and DisplayHeight fix the frame buffer geometry.
	DisplayWidth  = 64
	DisplayHeight = 32

	regCount  = 0x10
	vramCells = DisplayWidth * DisplayHeight

	// V0 supplies the offset for the indirect jump; VF collects
	// carry, borrow, shift-out and collision flags.
	indexReg = 0x0
	flagReg  = 0xf

	glyphBytesPer = 5
)

// CPU owns the whole machine: register file, memory, frame buffer,
// call stack and the timer clock. The zero value is not usable;
// construct with New and release with Close.
type CPU struct {
	pc    uint16
	sp    byte
	i     uint16
	v     [regCount]byte
	ram   [RAMBytes]byte
	vram  [vramCells]bool
	stack [StackDepth]uint16

	display Display
	input   Input
	timer   *timer
}

// New builds a machine with memory filled with 0xff, the hex glyphs
// seeded into low memory, and the timer clock already running. The
// caller must Close the machine to stop the clock.
func New() *CPU {
	c := &CPU{timer: newTimer()}
	for i := range c.ram {
		c.ram[i] = 0xff
	}
	copy(c.ram[:], FontSet[:])
	return c
}

// Close tears down the timer clock, waiting for it to exit.
func (c *CPU) Close() {
	c.timer.stop()
}

// Load copies a program into memory at LoadOffset and points the
// program counter at it. An oversized program fails outright; nothing
// is copied.
func (c *CPU) Load(data []byte) error {
	if len(data) > MaxProgramBytes {
		return fmt.Errorf("%w: program is %d bytes, max %d", ErrLoadFailure, len(data), MaxProgramBytes)
	}
	copy(c.ram[LoadOffset:], data)
	c.pc = LoadOffset
	return nil
}

// SetDisplay attaches the display driver. A nil display makes clear
// and draw report a missing driver.
func (c *CPU) SetDisplay(d Display) {
	c.display = d
}

// SetSound attaches the tone driver consumed by the timer clock.
func (c *CPU) SetSound(s Sound) {
	c.timer.setSound(s)
}

// SetInput attaches the keypad driver.
func (c *CPU) SetInput(in Input) {
	c.input = in
}

// Register returns the current value of Vr.
func (c *CPU) Register(r Reg) byte {
	return c.v[r&0x0f]
}

// PC returns the current program counter.
func (c *CPU) PC() uint16 {
	return c.pc
}

// Frame returns a copy of the frame buffer, row-major from the top
// left.
func (c *CPU) Frame() []bool {
	f := make([]bool, vramCells)
	copy(f, c.vram[:])
	return f
}

// DelayTimer reads the delay counter.
func (c *CPU) DelayTimer() byte {
	return byte(c.timer.dt.Load())
}

// SoundTimer reads the sound counter.
func (c *CPU) SoundTimer() byte {
	return byte(c.timer.st.Load())
}

// Tick runs one fetch/decode/execute cycle. On success the program
// counter has moved past the executed word; control flow operations
// express themselves on top of that baseline advance. On failure the
// error classifies per the taxonomy in errors.go and the caller
// decides, via Fatal, whether to stop.
func (c *CPU) Tick() error {
	code, err := c.fetch()
	if err != nil {
		return err
	}
	op, ok := Decode(code)
	if !ok {
		return fmt.Errorf("%w: %#04x", ErrBadInstruction, code)
	}
	return c.exec(op)
}

// fetch reads the big-endian operation word at the program counter.
func (c *CPU) fetch() (uint16, error) {
	if int(c.pc)+1 >= len(c.ram) {
		return 0, fmt.Errorf("%w: pc %#04x", ErrPrefetchAbort, c.pc)
	}
	return uint16(c.ram[c.pc])<<8 | uint16(c.ram[c.pc+1]), nil
}

// exec advances the program counter by 2 and applies op. When exec
// fails the advance has already happened but the operation's effect
// has not.
func (c *CPU) exec(op Op) error {
	c.pc += 2

	switch op.Kind {
	case Sys:
		return fmt.Errorf("%w: %v", ErrUnimplementedOp, op)

	case Cls:
		for i := range c.vram {
			c.vram[i] = false
		}
		return c.refresh()

	case Ret:
		if c.sp == 0 {
			return ErrStackUnderflow
		}
		c.sp--
		c.pc = c.stack[c.sp]

	case Jmp:
		c.pc = op.NNN

	case Call:
		if int(c.sp) >= len(c.stack) {
			return ErrStackOverflow
		}
		c.stack[c.sp] = c.pc
		c.sp++
		c.pc = op.NNN

	case Se:
		if c.v[op.X] == op.KK {
			c.pc += 2
		}

	case Sne:
		if c.v[op.X] != op.KK {
			c.pc += 2
		}

	case Sre:
		if c.v[op.X] == c.v[op.Y] {
			c.pc += 2
		}

	case Ld:
		c.v[op.X] = op.KK

	case Add:
		// the carry flag is intentionally untouched here, matching
		// the hardware being emulated
		c.v[op.X] += op.KK

	case Mov:
		c.v[op.X] = c.v[op.Y]

	case Or:
		c.v[op.X] |= c.v[op.Y]

	case And:
		c.v[op.X] &= c.v[op.Y]

	case Xor:
		c.v[op.X] ^= c.v[op.Y]

	case Addr:
		sum := uint16(c.v[op.X]) + uint16(c.v[op.Y])
		c.v[op.X] = byte(sum)
		c.v[flagReg] = byte(sum >> 8)

	case Subr:
		borrow := c.v[op.Y] > c.v[op.X]
		c.v[op.X] -= c.v[op.Y]
		c.v[flagReg] = flag(!borrow)

	case Shr:
		c.v[flagReg] = c.v[op.Y] & 0x01
		c.v[op.X] = c.v[op.Y] >> 1

	case Subnr:
		borrow := c.v[op.X] > c.v[op.Y]
		c.v[op.X] = c.v[op.Y] - c.v[op.X]
		c.v[flagReg] = flag(!borrow)

	case Shl:
		c.v[flagReg] = c.v[op.Y] >> 7
		c.v[op.X] = c.v[op.Y] << 1

	case Srne:
		if c.v[op.X] != c.v[op.Y] {
			c.pc += 2
		}

	case Ldi:
		c.i = op.NNN

	case Jmpi:
		c.pc = op.NNN + uint16(c.v[indexReg])

	case Rand:
		c.v[op.X] = byte(rand.Intn(0x100)) & op.KK

	case Draw:
		return c.draw(op)

	case Skp:
		if c.input == nil {
			return fmt.Errorf("%w: input", ErrDriverMissing)
		}
		if c.input.Poll(c.v[op.X]) {
			c.pc += 2
		}

	case Sknp:
		if c.input == nil {
			// no input driver means no key press, ever
			c.pc += 2
			return fmt.Errorf("%w: input", ErrDriverMissing)
		}
		if !c.input.Poll(c.v[op.X]) {
			c.pc += 2
		}

	case Movd:
		c.v[op.X] = byte(c.timer.dt.Load())

	case Key:
		if c.input == nil {
			return fmt.Errorf("%w: input", ErrDriverMissing)
		}
		c.v[op.X] = c.input.Block()

	case Ldd:
		c.timer.dt.Store(uint32(c.v[op.X]))

	case Lds:
		c.timer.st.Store(uint32(c.v[op.X]))

	case Addi:
		c.i += uint16(c.v[op.X])

	case Ldspr:
		c.i = glyphBytesPer * uint16(c.v[op.X])

	case Bcd:
		i := int(c.i)
		if i > len(c.ram)-3 {
			return fmt.Errorf("%w: bcd at %#04x", ErrDataAbort, c.i)
		}
		vx := c.v[op.X]
		c.ram[i] = vx / 100
		c.ram[i+1] = vx % 100 / 10
		c.ram[i+2] = vx % 10

	case Str:
		i := int(c.i)
		if i+int(op.X) >= len(c.ram) {
			return fmt.Errorf("%w: store v0-v%x at %#04x", ErrDataAbort, op.X, c.i)
		}
		copy(c.ram[i:], c.v[:op.X+1])

	case Read:
		i := int(c.i)
		if i+int(op.X) >= len(c.ram) {
			return fmt.Errorf("%w: read v0-v%x at %#04x", ErrDataAbort, op.X, c.i)
		}
		copy(c.v[:op.X+1], c.ram[i:])

	default:
		return fmt.Errorf("%w: %v", ErrMalformedOp, op)
	}

	return nil
}

// draw XORs an n-row sprite from memory at I into the frame buffer at
// (Vx, Vy). Each axis wraps independently. VF records whether any
// pixel went from set to unset.
func (c *CPU) draw(op Op) error {
	if int(c.i)+int(op.N) >= len(c.ram) {
		return fmt.Errorf("%w: sprite %#04x+%d", ErrDataAbort, c.i, op.N)
	}

	collision := false
	for row := 0; row < int(op.N); row++ {
		sprite := c.ram[int(c.i)+row]
		y := (int(c.v[op.Y]) + row) % DisplayHeight
		for col := 0; col < 8; col++ {
			set := sprite&(1<<(7-col)) != 0
			x := (int(c.v[op.X]) + col) % DisplayWidth
			cell := y*DisplayWidth + x
			if c.vram[cell] && set {
				collision = true
			}
			c.vram[cell] = c.vram[cell] != set
		}
	}
	c.v[flagReg] = flag(collision)

	return c.refresh()
}

// refresh pushes a frame buffer snapshot to the display driver.
func (c *CPU) refresh() error {
	if c.display == nil {
		return fmt.Errorf("%w: display", ErrDriverMissing)
	}
	c.display.Refresh(c.Frame())
	return nil
}

func flag(b bool) byte {
	if b {
		return 1
	}
	return 0
}
