package frame

import (
	"bytes"
	"iter"
)

const terminator = '\n'

// Limits constrains how much unterminated data the framer retains.
type Limits struct {
	// MaxLineBytes caps the unterminated fragment held between feeds.
	// Zero means unbounded.
	MaxLineBytes int
}

// DefaultLimits bounds a fragment at the longest line a server may send, 8191
// bytes of tags plus 512 of message. A tagged line is still framed whole; the
// parser then drops it as unsupported.
func DefaultLimits() Limits {
	return Limits{MaxLineBytes: 8191 + 512}
}

// Framer turns an arbitrarily chunked byte stream into newline-terminated
// lines. Unterminated trailing bytes are retained until a later Feed
// completes them. A Framer is owned by one reader and is not safe for
// concurrent use.
type Framer struct {
	limits    Limits
	buf       []byte
	discard   bool
	overflows int
}

func New(limits Limits) *Framer {
	return &Framer{limits: limits}
}

// Feed appends p and returns a sequence of the complete lines now buffered,
// each including its '\n'. Lines are removed from the buffer as they are
// yielded; stopping early leaves the rest for the next Feed. Yielded slices
// are only valid until the next yield or Feed.
func (f *Framer) Feed(p []byte) iter.Seq[[]byte] {
	f.append(p)
	return func(yield func([]byte) bool) {
		for {
			i := bytes.IndexByte(f.buf, terminator)
			if i < 0 {
				return
			}
			line := f.buf[:i+1]
			f.buf = f.buf[i+1:]
			if !yield(line) {
				return
			}
		}
	}
}

// Pending reports the number of retained bytes not yet yielded.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Overflows counts fragments discarded for exceeding MaxLineBytes.
func (f *Framer) Overflows() int {
	return f.overflows
}

func (f *Framer) append(p []byte) {
	if f.discard {
		i := bytes.IndexByte(p, terminator)
		if i < 0 {
			return
		}
		f.discard = false
		p = p[i+1:]
	}
	f.buf = append(f.buf, p...)
	f.enforceLimit()
}

// enforceLimit drops an unterminated tail that has outgrown the cap and
// skips input up to its eventual terminator.
func (f *Framer) enforceLimit() {
	limit := f.limits.MaxLineBytes
	if limit <= 0 {
		return
	}
	start := bytes.LastIndexByte(f.buf, terminator) + 1
	if len(f.buf)-start <= limit {
		return
	}
	f.buf = f.buf[:start]
	f.discard = true
	f.overflows++
}
