package cpu

import (
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

// testDisplay counts refresh notifications and keeps the last frame.
type testDisplay struct {
	refreshes int
	last      []bool
}

func (d *testDisplay) Refresh(vram []bool) {
	d.refreshes++
	d.last = vram
}

// testInput answers Poll from a fixed key set and Block with a fixed
// key.
type testInput struct {
	keys    [16]bool
	blocked byte
}

func (in *testInput) Poll(key byte) bool { return in.keys[key] }
func (in *testInput) Block() byte        { return in.blocked }

func newTestCPU(t *testing.T) *CPU {
	t.Helper()
	c := New()
	t.Cleanup(c.Close)
	return c
}

// step decodes and executes a single operation word.
func step(t *testing.T, c *CPU, code uint16) error {
	t.Helper()
	op, ok := Decode(code)
	assert.True(t, ok)
	return c.exec(op)
}

func mustStep(t *testing.T, c *CPU, codes ...uint16) {
	t.Helper()
	for _, code := range codes {
		assert.NoError(t, step(t, c, code))
	}
}

func TestLoadAndTick(t *testing.T) {
	program := []byte{
		0x60, 0x12, // ld v0, 0x12
		0x61, 0x02, // ld v1, 0x02
		0x80, 0x14, // addr v0, v1
	}

	c := newTestCPU(t)
	assert.NoError(t, c.Load(program))
	assert.Equal(t, uint16(LoadOffset), c.pc)

	assert.NoError(t, c.Tick())
	assert.Equal(t, uint16(LoadOffset+2), c.pc)
	assert.Equal(t, byte(0x12), c.v[0])

	assert.NoError(t, c.Tick())
	assert.Equal(t, uint16(LoadOffset+4), c.pc)
	assert.Equal(t, byte(0x02), c.v[1])

	assert.NoError(t, c.Tick())
	assert.Equal(t, uint16(LoadOffset+6), c.pc)
	assert.Equal(t, byte(0x14), c.v[0])

	// the next word is the 0xffff memory fill, which decodes to
	// nothing
	err := c.Tick()
	assert.True(t, errors.Is(err, ErrBadInstruction))
	assert.True(t, Fatal(err))
	assert.Equal(t, uint16(LoadOffset+6), c.pc)
}

func TestLoadBounds(t *testing.T) {
	c := newTestCPU(t)

	exact := make([]byte, MaxProgramBytes)
	assert.NoError(t, c.Load(exact))

	over := make([]byte, MaxProgramBytes+1)
	err := c.Load(over)
	assert.True(t, errors.Is(err, ErrLoadFailure))
}

func TestFontSeededAndRAMFilled(t *testing.T) {
	c := newTestCPU(t)

	assert.Equal(t, FontSet[:], c.ram[:len(FontSet)])
	assert.Equal(t, byte(0xff), c.ram[len(FontSet)])
	assert.Equal(t, byte(0xff), c.ram[RAMBytes-1])
}

// Immediate load then immediate add must equal loading the wrapped
// sum directly, with the flag register untouched either way.
func TestAddImmediateIgnoresCarry(t *testing.T) {
	c := newTestCPU(t)

	for _, k := range []byte{0x00, 0x01, 0x7f, 0x80, 0xff} {
		mustStep(t, c, 0x6f05) // sentinel in the flag register
		mustStep(t, c, 0x60f0) // ld v0, 0xf0
		assert.NoError(t, step(t, c, 0x7000|uint16(k)))

		assert.Equal(t, 0xf0+k, c.v[0])
		assert.Equal(t, byte(0x05), c.v[flagReg])
	}
}

func TestArithmeticFlags(t *testing.T) {
	c := newTestCPU(t)

	// addr: carry set on wraparound
	mustStep(t, c, 0x60ff, 0x6101, 0x8014)
	assert.Equal(t, byte(0x00), c.v[0])
	assert.Equal(t, byte(0x01), c.v[flagReg])

	mustStep(t, c, 0x6010, 0x6101, 0x8014)
	assert.Equal(t, byte(0x11), c.v[0])
	assert.Equal(t, byte(0x00), c.v[flagReg])

	// subr: flag is the negation of borrow
	mustStep(t, c, 0x6005, 0x6103, 0x8015)
	assert.Equal(t, byte(0x02), c.v[0])
	assert.Equal(t, byte(0x01), c.v[flagReg])

	mustStep(t, c, 0x6003, 0x6105, 0x8015)
	assert.Equal(t, byte(0xfe), c.v[0])
	assert.Equal(t, byte(0x00), c.v[flagReg])

	// subnr: same convention, operands reversed
	mustStep(t, c, 0x6003, 0x6105, 0x8017)
	assert.Equal(t, byte(0x02), c.v[0])
	assert.Equal(t, byte(0x01), c.v[flagReg])
}

func TestShifts(t *testing.T) {
	c := newTestCPU(t)

	// 8xy6: v[x] = v[y] >> 1, flag gets the low bit of the source.
	// the encoding puts the destination in the middle nibble.
	mustStep(t, c, 0x6103, 0x8126) // shr v2, v1
	assert.Equal(t, byte(0x01), c.v[2])
	assert.Equal(t, byte(0x01), c.v[flagReg])

	mustStep(t, c, 0x6104, 0x8126)
	assert.Equal(t, byte(0x02), c.v[2])
	assert.Equal(t, byte(0x00), c.v[flagReg])

	// 8xye: v[x] = v[y] << 1, flag gets the high bit of the source
	mustStep(t, c, 0x6181, 0x812e) // shl v2, v1
	assert.Equal(t, byte(0x02), c.v[2])
	assert.Equal(t, byte(0x01), c.v[flagReg])

	mustStep(t, c, 0x6141, 0x812e)
	assert.Equal(t, byte(0x82), c.v[2])
	assert.Equal(t, byte(0x00), c.v[flagReg])
}

func TestSkips(t *testing.T) {
	c := newTestCPU(t)

	pc := c.pc
	mustStep(t, c, 0x6030) // ld v0, 0x30
	pc += 2

	mustStep(t, c, 0x3030) // se v0, 0x30: taken
	pc += 4
	assert.Equal(t, pc, c.pc)

	mustStep(t, c, 0x3031) // se v0, 0x31: not taken
	pc += 2
	assert.Equal(t, pc, c.pc)

	mustStep(t, c, 0x4031) // sne v0, 0x31: taken
	pc += 4
	assert.Equal(t, pc, c.pc)

	mustStep(t, c, 0x6130) // ld v1, 0x30
	pc += 2

	mustStep(t, c, 0x5010) // sre v0, v1: taken
	pc += 4
	assert.Equal(t, pc, c.pc)

	mustStep(t, c, 0x9010) // srne v0, v1: not taken
	pc += 2
	assert.Equal(t, pc, c.pc)
}

func TestJumpsAndCalls(t *testing.T) {
	c := newTestCPU(t)

	mustStep(t, c, 0x1400) // jmp 0x400
	assert.Equal(t, uint16(0x400), c.pc)

	mustStep(t, c, 0x2600) // call 0x600
	assert.Equal(t, uint16(0x600), c.pc)
	assert.Equal(t, byte(1), c.sp)
	assert.Equal(t, uint16(0x402), c.stack[0])

	mustStep(t, c, 0x00ee) // ret
	assert.Equal(t, uint16(0x402), c.pc)
	assert.Equal(t, byte(0), c.sp)

	// indirect jump adds v0
	mustStep(t, c, 0x6010) // ld v0, 0x10
	mustStep(t, c, 0xb300) // jmpi 0x300
	assert.Equal(t, uint16(0x310), c.pc)
}

func TestStackLimits(t *testing.T) {
	c := newTestCPU(t)

	err := step(t, c, 0x00ee)
	assert.True(t, errors.Is(err, ErrStackUnderflow))
	assert.True(t, Fatal(err))

	for i := 0; i < StackDepth; i++ {
		mustStep(t, c, 0x2400)
	}
	err = step(t, c, 0x2400)
	assert.True(t, errors.Is(err, ErrStackOverflow))
	assert.True(t, Fatal(err))
}

func TestPrefetchAbort(t *testing.T) {
	c := newTestCPU(t)

	c.pc = RAMBytes
	_, err := c.fetch()
	assert.True(t, errors.Is(err, ErrPrefetchAbort))

	// the top byte of memory cannot hold a whole word either
	c.pc = RAMBytes - 1
	err = c.Tick()
	assert.True(t, errors.Is(err, ErrPrefetchAbort))
	assert.True(t, Fatal(err))
}

func TestSysIsUnimplemented(t *testing.T) {
	c := newTestCPU(t)

	pc := c.pc
	err := step(t, c, 0x0123)
	assert.True(t, errors.Is(err, ErrUnimplementedOp))
	assert.False(t, Fatal(err))
	assert.Equal(t, pc+2, c.pc)
}

func TestBCD(t *testing.T) {
	c := newTestCPU(t)

	mustStep(t, c,
		0x6087, // ld v0, 135
		0xa400, // ldi 0x400
		0xf033, // bcd v0
		0xf265, // read v0-v2
	)

	assert.Equal(t, byte(1), c.v[0])
	assert.Equal(t, byte(3), c.v[1])
	assert.Equal(t, byte(5), c.v[2])

	// three cells starting at the top of memory do not fit
	mustStep(t, c, 0xaffe) // ldi 0xffe
	err := step(t, c, 0xf033)
	assert.True(t, errors.Is(err, ErrDataAbort))
}

func TestBlockStoreLoad(t *testing.T) {
	c := newTestCPU(t)

	mustStep(t, c,
		0x600a, // ld v0, 0x0a
		0x610b, // ld v1, 0x0b
		0x620c, // ld v2, 0x0c
		0xa400, // ldi 0x400
		0xf255, // str v0-v2
	)
	assert.Equal(t, []byte{0x0a, 0x0b, 0x0c}, c.ram[0x400:0x403])
	// the cell after the range keeps the memory fill
	assert.Equal(t, byte(0xff), c.ram[0x403])

	mustStep(t, c, 0x6000, 0x6100, 0x6200) // zero v0-v2
	mustStep(t, c, 0xf265)                 // read v0-v2
	assert.Equal(t, byte(0x0a), c.v[0])
	assert.Equal(t, byte(0x0b), c.v[1])
	assert.Equal(t, byte(0x0c), c.v[2])

	mustStep(t, c, 0xaffe) // ldi 0xffe
	err := step(t, c, 0xf255)
	assert.True(t, errors.Is(err, ErrDataAbort))
	err = step(t, c, 0xf265)
	assert.True(t, errors.Is(err, ErrDataAbort))
}

func TestGlyphAddress(t *testing.T) {
	c := newTestCPU(t)

	mustStep(t, c, 0x600a, 0xf029) // ldspr va's glyph
	assert.Equal(t, uint16(0x0a*5), c.i)

	// the glyph for A starts with the 0xf0 row
	assert.Equal(t, byte(0xf0), c.ram[c.i])
}

func TestAddIndex(t *testing.T) {
	c := newTestCPU(t)

	mustStep(t, c, 0xa123, 0x6010, 0xf01e)
	assert.Equal(t, uint16(0x133), c.i)
}

func TestRandMasked(t *testing.T) {
	c := newTestCPU(t)

	// a zero mask forces zero whatever the random draw was
	mustStep(t, c, 0x60ff, 0xc000)
	assert.Equal(t, byte(0), c.v[0])

	for i := 0; i < 50; i++ {
		mustStep(t, c, 0xc00f)
		assert.True(t, c.v[0] <= 0x0f)
	}
}

func TestDraw(t *testing.T) {
	c := newTestCPU(t)
	d := &testDisplay{}
	c.SetDisplay(d)

	// an 8x3 box: rows ff, 81, ff staged through v0-v2
	mustStep(t, c,
		0x60ff, 0x6181, 0x62ff,
		0xa400, // ldi 0x400
		0xf255, // str v0-v2
		0x6315, // ld v3, 0x15
		0x6405, // ld v4, 0x05
	)

	mustStep(t, c, 0xd343) // draw v3, v4, 3
	assert.Equal(t, 1, d.refreshes)
	assert.Equal(t, byte(0), c.v[flagReg])

	row := func(y, x int) bool { return c.vram[y*DisplayWidth+x] }
	assert.True(t, row(5, 0x15) && row(5, 0x1c))
	assert.True(t, row(6, 0x15) && row(6, 0x1c))
	assert.False(t, row(6, 0x16))
	assert.True(t, row(7, 0x15) && row(7, 0x1c))

	// drawing the same sprite again erases it and reports the
	// collision
	mustStep(t, c, 0xd343)
	assert.Equal(t, 2, d.refreshes)
	assert.Equal(t, byte(1), c.v[flagReg])
	for _, px := range c.vram {
		assert.False(t, px)
	}
}

func TestDrawWrapsPerAxis(t *testing.T) {
	c := newTestCPU(t)
	c.SetDisplay(&testDisplay{})

	mustStep(t, c,
		0x60ff, 0x6181, 0x62ff,
		0xa400,
		0xf255,
		0x633c, // ld v3, 60
		0x641e, // ld v4, 30
		0xd343,
	)

	row := func(y, x int) bool { return c.vram[y*DisplayWidth+x] }

	// columns 60-63 then 0-3, rows 30-31 then 0
	assert.True(t, row(30, 60) && row(30, 63) && row(30, 0) && row(30, 3))
	assert.True(t, row(31, 60) && row(31, 0x00) == false)
	assert.True(t, row(31, 63) == false && row(31, 3))
	assert.True(t, row(0, 60) && row(0, 3))

	// nothing bled into neighbouring rows or columns
	assert.False(t, row(29, 60))
	assert.False(t, row(1, 60))
	assert.False(t, row(30, 59))
	assert.False(t, row(30, 4))
}

func TestDrawBounds(t *testing.T) {
	c := newTestCPU(t)
	c.SetDisplay(&testDisplay{})

	mustStep(t, c, 0xaffd) // ldi 0xffd
	err := step(t, c, 0xd003)
	assert.True(t, errors.Is(err, ErrDataAbort))
	assert.True(t, Fatal(err))
}

func TestDrawWithoutDisplay(t *testing.T) {
	c := newTestCPU(t)

	mustStep(t, c, 0xa000)
	err := step(t, c, 0xd001)
	assert.True(t, errors.Is(err, ErrDriverMissing))
	assert.False(t, Fatal(err))

	// the frame buffer was still mutated; only the notification
	// failed
	set := false
	for _, px := range c.vram {
		set = set || px
	}
	assert.True(t, set)
}

func TestClear(t *testing.T) {
	c := newTestCPU(t)
	d := &testDisplay{}
	c.SetDisplay(d)

	mustStep(t, c, 0xa000, 0xd001) // put some pixels up
	mustStep(t, c, 0x00e0)
	assert.Equal(t, 2, d.refreshes)
	for _, px := range d.last {
		assert.False(t, px)
	}
}

func TestKeySkips(t *testing.T) {
	c := newTestCPU(t)
	in := &testInput{}
	in.keys[0x5] = true
	c.SetInput(in)

	mustStep(t, c, 0x6005) // ld v0, 0x05
	pc := c.pc

	mustStep(t, c, 0xe09e) // skp v0: key down, skip
	pc += 4
	assert.Equal(t, pc, c.pc)

	mustStep(t, c, 0xe0a1) // sknp v0: key down, no skip
	pc += 2
	assert.Equal(t, pc, c.pc)

	in.keys[0x5] = false
	mustStep(t, c, 0xe09e) // key up, no skip
	pc += 2
	assert.Equal(t, pc, c.pc)

	mustStep(t, c, 0xe0a1) // key up, skip
	pc += 4
	assert.Equal(t, pc, c.pc)
}

func TestKeySkipsWithoutInput(t *testing.T) {
	c := newTestCPU(t)

	pc := c.pc
	err := step(t, c, 0xe09e)
	assert.True(t, errors.Is(err, ErrDriverMissing))
	assert.False(t, Fatal(err))
	pc += 2
	assert.Equal(t, pc, c.pc)

	// with no input driver no key is ever pressed, so the negative
	// skip is taken even though the missing driver is reported
	err = step(t, c, 0xe0a1)
	assert.True(t, errors.Is(err, ErrDriverMissing))
	pc += 4
	assert.Equal(t, pc, c.pc)
}

func TestBlockingKeyRead(t *testing.T) {
	c := newTestCPU(t)
	c.SetInput(&testInput{blocked: 0xb})

	mustStep(t, c, 0xf30a) // key v3
	assert.Equal(t, byte(0xb), c.v[3])

	c.SetInput(nil)
	err := step(t, c, 0xf30a)
	assert.True(t, errors.Is(err, ErrDriverMissing))
}

func TestObservableState(t *testing.T) {
	c := newTestCPU(t)

	mustStep(t, c, 0x6a42)
	assert.Equal(t, byte(0x42), c.Register(0xa))
	assert.Equal(t, c.pc, c.PC())

	frame := c.Frame()
	assert.Equal(t, DisplayWidth*DisplayHeight, len(frame))

	// the copy does not alias the frame buffer
	frame[0] = true
	assert.False(t, c.vram[0])
}
