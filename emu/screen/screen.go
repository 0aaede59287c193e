// Package screen is the pixel-backed presentation layer: one window
// acting as both the display and the keypad for the machine core.
package screen

import (
	"image/color"
	"sync"

	"github.com/faiface/pixel"
	"github.com/faiface/pixel/pixelgl"
	"golang.org/x/image/colornames"

	"chip8/emu/cpu"
)

// keymap maps the 16 logical keys onto the left hand side of a qwerty
// keyboard, the same layout as the original hex keypad:
//
//	1 2 3 C        1 2 3 4
//	4 5 6 D   <-   q w e r
//	7 8 9 E        a s d f
//	A 0 B F        z x c v
var keymap = [16]pixelgl.Button{
	0x0: pixelgl.KeyX,
	0x1: pixelgl.Key1,
	0x2: pixelgl.Key2,
	0x3: pixelgl.Key3,
	0x4: pixelgl.KeyQ,
	0x5: pixelgl.KeyW,
	0x6: pixelgl.KeyE,
	0x7: pixelgl.KeyA,
	0x8: pixelgl.KeyS,
	0x9: pixelgl.KeyD,
	0xa: pixelgl.KeyZ,
	0xb: pixelgl.KeyC,
	0xc: pixelgl.Key4,
	0xd: pixelgl.KeyR,
	0xe: pixelgl.KeyF,
	0xf: pixelgl.KeyV,
}

// Window owns the pixelgl window and implements the core's Display
// and Input capabilities. Refresh, Poll and Block may be called from
// the machine's goroutine; all pixelgl calls stay on the thread
// running Run.
type Window struct {
	win   *pixelgl.Window
	scale float64

	// frames carries at most the latest frame buffer snapshot; a
	// stale frame is dropped rather than making Refresh wait.
	frames chan []bool

	mu   sync.Mutex
	keys [16]bool

	presses chan byte
}

// New opens the window. Must run on the main thread, inside
// pixelgl.Run.
func New(title string, scale float64) (*Window, error) {
	cfg := pixelgl.WindowConfig{
		Title:  title,
		Bounds: pixel.R(0, 0, cpu.DisplayWidth*scale, cpu.DisplayHeight*scale),
		VSync:  true,
	}

	win, err := pixelgl.NewWindow(cfg)
	if err != nil {
		return nil, err
	}
	win.Clear(colornames.Black)

	return &Window{
		win:     win,
		scale:   scale,
		frames:  make(chan []bool, 1),
		presses: make(chan byte, 1),
	}, nil
}

// Refresh implements cpu.Display. It never blocks: if the previous
// snapshot was not consumed yet it is replaced by this one.
func (w *Window) Refresh(vram []bool) {
	f := make([]bool, len(vram))
	copy(f, vram)

	for {
		select {
		case w.frames <- f:
			return
		default:
			select {
			case <-w.frames:
			default:
			}
		}
	}
}

// Poll implements the non-blocking half of cpu.Input.
func (w *Window) Poll(key byte) bool {
	if key > 0x0f {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keys[key]
}

// Block implements the blocking half of cpu.Input, suspending the
// caller until the window sees a fresh key press.
func (w *Window) Block() byte {
	return <-w.presses
}

// Closed reports whether the user closed the window.
func (w *Window) Closed() bool {
	return w.win.Closed()
}

// Run drives the window until it is closed: repaint on a new frame
// buffer snapshot, then update the keypad state. Must run on the
// thread that called New.
func (w *Window) Run() {
	pic := pixel.MakePictureData(pixel.R(0, 0, cpu.DisplayWidth, cpu.DisplayHeight))
	matrix := pixel.IM.
		Scaled(pixel.ZV, w.scale).
		Moved(w.win.Bounds().Center())

	for !w.win.Closed() {
		select {
		case frame := <-w.frames:
			w.paint(pic, frame)
			w.win.Clear(colornames.Black)
			pixel.NewSprite(pic, pic.Rect).Draw(w.win, matrix)
		default:
		}

		w.pollKeys()
		w.win.Update()
	}
}

// paint copies a frame buffer snapshot into the picture data. The
// frame buffer is row-major from the top left while picture rows run
// bottom up, so rows are flipped.
func (w *Window) paint(pic *pixel.PictureData, frame []bool) {
	for i, set := range frame {
		x := i % cpu.DisplayWidth
		y := cpu.DisplayHeight - 1 - i/cpu.DisplayWidth

		px := color.RGBA{A: 0xff}
		if set {
			px = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
		}
		pic.Pix[y*pic.Stride+x] = px
	}
}

// pollKeys snapshots the keypad and forwards fresh presses to any
// blocked reader.
func (w *Window) pollKeys() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for k, btn := range keymap {
		down := w.win.Pressed(btn)
		if down && !w.keys[k] {
			select {
			case w.presses <- byte(k):
			default:
			}
		}
		w.keys[k] = down
	}
}
