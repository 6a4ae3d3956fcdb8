// Package titlefilter implements the byte-stream state machine that
// strips or rewrites OSC terminal-title escape sequences (§4.D). It is
// re-entrant across arbitrarily small chunks: a partial escape sequence at
// a chunk boundary is never misclassified.
package titlefilter

import "fmt"

// Mode selects how the filter treats recognized title sequences.
type Mode string

const (
	ModeNone    Mode = "none"
	ModeFilter  Mode = "filter"
	ModeStatic  Mode = "static"
	ModeDynamic Mode = "dynamic" // deprecated alias of static
)

// Normalize folds the deprecated "dynamic" alias into "static".
func (m Mode) Normalize() Mode {
	if m == ModeDynamic {
		return ModeStatic
	}
	return m
}

const (
	esc = 0x1b
	bel = 0x07
)

type state int

const (
	stateNormal state = iota
	stateESC
	stateOSCType
	stateOSCAfterType
	stateOSCBody
	stateOSCEscape
)

// Filter is a re-entrant byte filter for one stream. Not safe for
// concurrent use from multiple goroutines without external synchronization.
type Filter struct {
	mode Mode

	st      state
	pending []byte // raw bytes of the in-progress escape sequence, for passthrough-on-abort
	code    []byte // digits of the OSC type code seen so far
	body    []byte // accumulated title text once code is known to be 0/1/2

	// LastTitle is updated whenever a complete title sequence is recognized
	// and swallowed, for callers that want to observe child-set titles.
	LastTitle string
}

// New creates a filter in the given mode.
func New(mode Mode) *Filter {
	return &Filter{mode: mode.Normalize()}
}

// EmitTitle renders the ESC ] 2 ; name BEL sequence the forwarder injects
// in static mode whenever the session's name changes.
func EmitTitle(name string) []byte {
	return []byte(fmt.Sprintf("\x1b]2;%s\x07", name))
}

// isTitleCode reports whether a parsed OSC numeric code is one of the
// recognized title sequences (0, 1, 2).
func isTitleCode(code []byte) bool {
	return len(code) == 1 && (code[0] == '0' || code[0] == '1' || code[0] == '2')
}

// Process filters one chunk of input and returns the bytes that should be
// passed downstream. It may be called repeatedly with arbitrarily sized
// (including single-byte) chunks of a single logical stream.
func (f *Filter) Process(in []byte) []byte {
	if f.mode == ModeNone {
		return in
	}
	out := make([]byte, 0, len(in))
	for _, b := range in {
		out = f.step(b, out)
	}
	return out
}

// swallow reports whether recognized title sequences should be dropped
// rather than passed through, for the current mode.
func (f *Filter) swallow() bool {
	return f.mode == ModeFilter || f.mode == ModeStatic
}

func (f *Filter) step(b byte, out []byte) []byte {
	switch f.st {
	case stateNormal:
		if b == esc {
			f.st = stateESC
			f.pending = append(f.pending[:0], b)
			return out
		}
		return append(out, b)

	case stateESC:
		if b == ']' {
			f.st = stateOSCType
			f.pending = append(f.pending, b)
			f.code = f.code[:0]
			return out
		}
		// Not an OSC — pass the buffered ESC plus this byte through
		// unchanged and resume normal processing.
		out = append(out, f.pending...)
		out = append(out, b)
		f.st = stateNormal
		f.pending = f.pending[:0]
		return out

	case stateOSCType:
		if b >= '0' && b <= '9' {
			f.code = append(f.code, b)
			f.pending = append(f.pending, b)
			return out
		}
		if b == ';' {
			f.pending = append(f.pending, b)
			f.st = stateOSCAfterType
			return f.afterType(out)
		}
		// Malformed — not digits-then-semicolon. Abort recognition.
		out = append(out, f.pending...)
		out = append(out, b)
		f.reset()
		return out

	case stateOSCAfterType:
		// Transient: afterType() always advances state before returning,
		// so step() should never observe this state directly.
		return f.step(b, out)

	case stateOSCBody:
		if b == bel {
			f.completeTitle()
			if !f.swallow() {
				out = append(out, f.pending...)
				out = append(out, b)
			}
			f.reset()
			return out
		}
		if b == esc {
			f.st = stateOSCEscape
			f.pending = append(f.pending, b)
			return out
		}
		f.body = append(f.body, b)
		f.pending = append(f.pending, b)
		return out

	case stateOSCEscape:
		if b == '\\' {
			f.pending = append(f.pending, b)
			f.completeTitle()
			if !f.swallow() {
				out = append(out, f.pending...)
			}
			f.reset()
			return out
		}
		// False alarm: the ESC wasn't followed by '\' so it wasn't ST.
		// The ESC byte is already content of the OSC body; re-enter body
		// processing for the current byte so nothing is lost.
		f.st = stateOSCBody
		f.body = append(f.body, esc)
		return f.step(b, out)
	}
	return out
}

// afterType runs immediately once ';' is seen: decide whether this OSC is
// a recognized title sequence or something else that must pass through
// unmodified once its terminator is found.
func (f *Filter) afterType(out []byte) []byte {
	if isTitleCode(f.code) {
		f.st = stateOSCBody
		f.body = f.body[:0]
		return out
	}
	// Not a title OSC: we don't know this sequence's terminator rule well
	// enough to special-case it, so just flush what's buffered and return
	// to normal passthrough. Any bytes belonging to its body/terminator
	// pass through untouched as ordinary bytes (harmless for downstream
	// terminals, which parse their own OSC state independent of us).
	out = append(out, f.pending...)
	f.reset()
	return out
}

func (f *Filter) completeTitle() {
	f.LastTitle = string(f.body)
}

func (f *Filter) reset() {
	f.st = stateNormal
	f.pending = f.pending[:0]
	f.code = f.code[:0]
	f.body = f.body[:0]
}
