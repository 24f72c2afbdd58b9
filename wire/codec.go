package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// encoder is a small length-prefixed binary writer, fixed-width fields
// plus a length prefix on every variable-length one.
type encoder struct {
	buf bytes.Buffer
}

func newEncoder() *encoder {
	return &encoder{}
}

func (e *encoder) bytes() []byte {
	return e.buf.Bytes()
}

func (e *encoder) u8(v uint8) {
	e.buf.WriteByte(v)
}

func (e *encoder) u16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) i64(v int64) {
	e.u64(uint64(v))
}

func (e *encoder) bool(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) rawBytes(b []byte) {
	e.u32(uint32(len(b)))
	e.buf.Write(b)
}

func (e *encoder) str(s string) {
	e.rawBytes([]byte(s))
}

func (e *encoder) strSlice(ss []string) {
	e.u32(uint32(len(ss)))
	for _, s := range ss {
		e.str(s)
	}
}

func (e *encoder) strMap(m map[string]string) {
	e.u32(uint32(len(m)))
	for k, v := range m {
		e.str(k)
		e.str(v)
	}
}

func (e *encoder) strSliceMap(m map[string][]string) {
	e.u32(uint32(len(m)))
	for k, v := range m {
		e.str(k)
		e.strSlice(v)
	}
}

// decoder is the mirror-image reader. It never panics: malformed input
// surfaces as an error from the accessor.
type decoder struct {
	data []byte
	pos  int
	err  error
}

func newDecoder(data []byte) *decoder {
	return &decoder{data: data}
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.pos+n > len(d.data) {
		d.fail(fmt.Errorf("%w: need %d bytes, have %d", ErrMalformedPacket, n, len(d.data)-d.pos))
		return nil
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) u8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) u16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (d *decoder) u32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *decoder) u64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (d *decoder) i64() int64 {
	return int64(d.u64())
}

func (d *decoder) boolean() bool {
	return d.u8() != 0
}

// maxFieldBytes bounds any single length-prefixed field to the frame size
// ceiling, so a corrupt length prefix cannot trigger a huge allocation.
const maxFieldBytes = 32 << 20

func (d *decoder) rawBytes() []byte {
	n := d.u32()
	if d.err != nil {
		return nil
	}
	if n > maxFieldBytes {
		d.fail(fmt.Errorf("%w: field length %d exceeds limit", ErrMalformedPacket, n))
		return nil
	}
	b := d.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (d *decoder) str() string {
	return string(d.rawBytes())
}

func (d *decoder) strSlice() []string {
	n := d.u32()
	if d.err != nil || n > maxFieldBytes {
		return nil
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		out = append(out, d.str())
	}
	return out
}

func (d *decoder) strMap() map[string]string {
	n := d.u32()
	if d.err != nil || n > maxFieldBytes {
		return nil
	}
	out := make(map[string]string, n)
	for i := uint32(0); i < n; i++ {
		k := d.str()
		v := d.str()
		out[k] = v
	}
	return out
}

func (d *decoder) strSliceMap() map[string][]string {
	n := d.u32()
	if d.err != nil || n > maxFieldBytes {
		return nil
	}
	out := make(map[string][]string, n)
	for i := uint32(0); i < n; i++ {
		k := d.str()
		v := d.strSlice()
		out[k] = v
	}
	return out
}
