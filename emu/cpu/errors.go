package cpu

import "errors"

// Error taxonomy for the core. Callers match with errors.Is; the
// engine wraps these with operation context where it helps.
var (
	ErrBadInstruction  = errors.New("bad instruction")
	ErrDataAbort       = errors.New("data abort")
	ErrDriverMissing   = errors.New("driver missing")
	ErrLoadFailure     = errors.New("load failure")
	ErrMalformedOp     = errors.New("malformed op")
	ErrPrefetchAbort   = errors.New("prefetch abort")
	ErrStackOverflow   = errors.New("stack overflow")
	ErrStackUnderflow  = errors.New("stack underflow")
	ErrUnimplementedOp = errors.New("unimplemented op")
)

// Fatal reports whether err means the machine's control flow or memory
// invariants were violated and execution must stop. A missing driver,
// a malformed operation or an unimplemented one indicate an
// environment or ROM problem; the tick loop may log those and carry
// on.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrDriverMissing),
		errors.Is(err, ErrMalformedOp),
		errors.Is(err, ErrUnimplementedOp):
		return false
	}
	return true
}
