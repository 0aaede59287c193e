package cpu

// Display receives full frame buffer snapshots after every clear and
// every successful sprite draw. Refresh must not block indefinitely.
type Display interface {
	Refresh(vram []bool)
}

// Sound is the tone control driven by the timer clock. Start and Stop
// are idempotent.
type Sound interface {
	Start()
	Stop()
}

// Input answers keypad queries. Poll is a non-blocking check of a
// single key's state; Block suspends the caller until some key is
// pressed and returns it.
type Input interface {
	Poll(key byte) bool
	Block() byte
}
