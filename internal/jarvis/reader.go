package jarvis

import (
	"errors"
	"time"

	"github.com/banshee-data/desk.report/internal/timeutil"
)

// Defaults for FrameReader.
const (
	DefaultBufferLimit  = 64
	DefaultFrameTimeout = 100 * time.Millisecond
)

var (
	// ErrNoFrame means the buffer does not hold a complete frame yet.
	ErrNoFrame = errors.New("no complete frame buffered")
	// ErrChecksum means a complete candidate frame failed its checksum.
	ErrChecksum = errors.New("frame checksum mismatch")
	// ErrBadLength means the parameter count byte is larger than MaxParams.
	ErrBadLength = errors.New("frame parameter count out of range")
	// ErrBadTerminator means the byte after the checksum was not EOM.
	ErrBadTerminator = errors.New("frame not terminated by end-of-message byte")
)

// ReaderStats counts what a FrameReader has seen since it was created.
type ReaderStats struct {
	Frames         uint64 `json:"frames"`
	ChecksumErrors uint64 `json:"checksum_errors"`
	FramingErrors  uint64 `json:"framing_errors"`
	DiscardedBytes uint64 `json:"discarded_bytes"`
	Expired        uint64 `json:"expired"`
}

// FrameReader reassembles frames from a byte stream. It is not safe for
// concurrent use; the desk poll loop is its only caller.
type FrameReader struct {
	addr    byte
	limit   int
	timeout time.Duration
	clock   timeutil.Clock

	buf      []byte
	lastFeed time.Time
	stats    ReaderStats
}

// ReaderOption configures a FrameReader.
type ReaderOption func(*FrameReader)

// WithBufferLimit bounds the number of buffered bytes. Values below
// MaxFrameLen are raised to MaxFrameLen.
func WithBufferLimit(n int) ReaderOption {
	return func(r *FrameReader) {
		if n < MaxFrameLen {
			n = MaxFrameLen
		}
		r.limit = n
	}
}

// WithFrameTimeout sets how long a partial frame may stay buffered before
// Expire discards it. Zero disables expiry.
func WithFrameTimeout(d time.Duration) ReaderOption {
	return func(r *FrameReader) { r.timeout = d }
}

// WithClock sets the clock used for partial frame expiry.
func WithClock(c timeutil.Clock) ReaderOption {
	return func(r *FrameReader) { r.clock = c }
}

// WithAddress sets the address byte that marks the start of a frame.
// Defaults to AddrController.
func WithAddress(addr byte) ReaderOption {
	return func(r *FrameReader) { r.addr = addr }
}

// NewFrameReader returns a reader for frames sent by the controller.
func NewFrameReader(opts ...ReaderOption) *FrameReader {
	r := &FrameReader{
		addr:    AddrController,
		limit:   DefaultBufferLimit,
		timeout: DefaultFrameTimeout,
		clock:   timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.buf = make([]byte, 0, r.limit)
	return r
}

// Feed appends raw bytes from the serial line. When the buffer would exceed
// its limit the oldest bytes are dropped. Every call with data restarts the
// partial frame timeout.
func (r *FrameReader) Feed(p []byte) {
	if len(p) == 0 {
		return
	}
	r.lastFeed = r.clock.Now()
	if len(p) >= r.limit {
		r.stats.DiscardedBytes += uint64(len(r.buf) + len(p) - r.limit)
		r.buf = append(r.buf[:0], p[len(p)-r.limit:]...)
		return
	}
	if over := len(r.buf) + len(p) - r.limit; over > 0 {
		r.discard(over)
	}
	r.buf = append(r.buf, p...)
}

// Next returns the next valid frame in the buffer. Bytes ahead of the start
// marker are dropped. A complete but invalid candidate drops only its first
// byte so a genuine marker inside it is found by the following call.
func (r *FrameReader) Next() (Frame, error) {
	i := r.markerIndex()
	if i < 0 {
		// A lone trailing address byte may be the first half of a marker.
		keep := 0
		if n := len(r.buf); n > 0 && r.buf[n-1] == r.addr {
			keep = 1
		}
		r.discard(len(r.buf) - keep)
		return Frame{}, ErrNoFrame
	}
	r.discard(i)

	if len(r.buf) < headerLen {
		return Frame{}, ErrNoFrame
	}
	n := int(r.buf[3])
	if n > MaxParams {
		r.stats.FramingErrors++
		r.discard(1)
		return Frame{}, ErrBadLength
	}
	size := headerLen + n + 2
	if len(r.buf) < size {
		return Frame{}, ErrNoFrame
	}

	candidate := r.buf[:size]
	if candidate[size-1] != EOM {
		r.stats.FramingErrors++
		r.discard(1)
		return Frame{}, ErrBadTerminator
	}

	f := Frame{Address: candidate[0], Command: candidate[2]}
	if n > 0 {
		f.Params = append([]byte(nil), candidate[headerLen:headerLen+n]...)
	}
	if f.Checksum() != candidate[headerLen+n] {
		r.stats.ChecksumErrors++
		r.discard(1)
		return Frame{}, ErrChecksum
	}

	r.consume(size)
	r.stats.Frames++
	return f, nil
}

// Expire drops buffered data when no byte has arrived for longer than the
// frame timeout, and reports whether anything was dropped. Call it after
// Next has taken every complete frame.
func (r *FrameReader) Expire() bool {
	if r.timeout <= 0 || len(r.buf) == 0 {
		return false
	}
	if r.clock.Since(r.lastFeed) <= r.timeout {
		return false
	}
	r.stats.Expired++
	r.discard(len(r.buf))
	return true
}

// Buffered returns the number of bytes waiting to be parsed.
func (r *FrameReader) Buffered() int { return len(r.buf) }

// Limit returns the buffer bound.
func (r *FrameReader) Limit() int { return r.limit }

// Stats returns a copy of the reader counters.
func (r *FrameReader) Stats() ReaderStats { return r.stats }

func (r *FrameReader) markerIndex() int {
	for i := 0; i+1 < len(r.buf); i++ {
		if r.buf[i] == r.addr && r.buf[i+1] == r.addr {
			return i
		}
	}
	return -1
}

func (r *FrameReader) discard(n int) {
	if n <= 0 {
		return
	}
	r.stats.DiscardedBytes += uint64(n)
	r.consume(n)
}

func (r *FrameReader) consume(n int) {
	r.buf = append(r.buf[:0], r.buf[n:]...)
}
