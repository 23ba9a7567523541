package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// addressLen is the serialized size of an address: one version byte
// followed by a 32-byte hash.
const addressLen = 33

// addressPrefix marks user/contract addresses in their string form.
const addressPrefix = "AU"

// maxVecLen bounds length-prefixed arrays so a corrupt count cannot
// trigger a huge allocation.
const maxVecLen = 1 << 16

// reader consumes a fixed-layout little-endian argument buffer.
// The first decode failure sticks; subsequent reads return zero values.
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) fail(format string, args ...interface{}) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s at offset %d", ErrMalformedOperation, fmt.Sprintf(format, args...), r.off)
	}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.fail("need %d bytes, have %d", n, len(r.buf)-r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) i64() int64 {
	return int64(r.u64())
}

func (r *reader) i32() int32 {
	return int32(r.u32())
}

// amount reads a u64 raw token amount and rejects values beyond int64,
// which storage cannot represent.
func (r *reader) amount() int64 {
	v := r.u64()
	if v > 1<<63-1 {
		r.fail("amount %d overflows int64", v)
		return 0
	}
	return int64(v)
}

// address reads a serialized address and renders its string form.
func (r *reader) address() string {
	b := r.take(addressLen)
	if b == nil {
		return ""
	}
	return addressPrefix + base58.Encode(b)
}

func (r *reader) vecLen() int {
	n := r.u32()
	if n > maxVecLen {
		r.fail("vector length %d exceeds limit", n)
		return 0
	}
	return int(n)
}

func (r *reader) u32Vec() []uint32 {
	n := r.vecLen()
	if r.err != nil {
		return nil
	}
	out := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.u32())
	}
	return out
}

func (r *reader) i32Vec() []int32 {
	n := r.vecLen()
	if r.err != nil {
		return nil
	}
	out := make([]int32, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.i32())
	}
	return out
}

func (r *reader) u64Vec() []uint64 {
	n := r.vecLen()
	if r.err != nil {
		return nil
	}
	out := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.u64())
	}
	return out
}

func (r *reader) addressVec() []string {
	n := r.vecLen()
	if r.err != nil {
		return nil
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.address())
	}
	return out
}

// done reports the sticky error, also failing if bytes remain unread.
func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.buf) {
		r.fail("%d trailing bytes", len(r.buf)-r.off)
	}
	return r.err
}
