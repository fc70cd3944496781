package serialization

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"go.dedis.ch/kyber/v3"
)

// maxSliceLen bounds length prefixes so corrupt input cannot force huge allocations.
const maxSliceLen = 1 << 20

// Deserializer is the reading counterpart of Serializer.
type Deserializer struct {
	r   *bytes.Reader
	err error
}

func NewDeserializer(data []byte) *Deserializer {
	return &Deserializer{r: bytes.NewReader(data)}
}

func (d *Deserializer) Read(p []byte) {
	if d.err != nil {
		return
	}
	_, d.err = io.ReadFull(d.r, p)
}

func (d *Deserializer) ReadUint64() uint64 {
	if d.err != nil {
		return 0
	}
	var u uint64
	d.err = binary.Read(d.r, binary.BigEndian, &u)
	return u
}

func (d *Deserializer) ReadInt64() int64 {
	if d.err != nil {
		return 0
	}
	var i int64
	d.err = binary.Read(d.r, binary.BigEndian, &i)
	return i
}

// ReadInt reads a value written by WriteInt.
func (d *Deserializer) ReadInt() int {
	return int(d.ReadInt64())
}

// ExpectVersion reads a version byte and fails unless it equals v.
func (d *Deserializer) ExpectVersion(v byte) {
	var got [1]byte
	d.Read(got[:])
	if d.err == nil && got[0] != v {
		d.err = fmt.Errorf("unsupported format version %d, want %d", got[0], v)
	}
}

func (d *Deserializer) ReadKyber(obj ...kyber.Marshaling) {
	if d.err != nil {
		return
	}
	for _, o := range obj {
		_, d.err = o.UnmarshalFrom(d.r)
		if d.err != nil {
			return
		}
	}
}

// ReadBytes reads from the current position to the end of the reader.
func (d *Deserializer) ReadBytes() []byte {
	if d.err != nil {
		return nil
	}
	rem := d.r.Len()
	if rem == 0 {
		return []byte{}
	}
	buf := make([]byte, rem)
	d.Read(buf)
	return buf
}

// ReadByteSlice reads a length-prefixed byte slice.
func (d *Deserializer) ReadByteSlice() []byte {
	if d.err != nil {
		return nil
	}
	var length uint32
	d.err = binary.Read(d.r, binary.BigEndian, &length)
	if d.err != nil {
		return nil
	}
	if length > maxSliceLen || int(length) > d.r.Len() {
		d.err = fmt.Errorf("length prefix %d exceeds remaining input %d", length, d.r.Len())
		return nil
	}
	buf := make([]byte, length)
	d.Read(buf)
	return buf
}

// ReadString reads a length-prefixed string.
func (d *Deserializer) ReadString() string {
	return string(d.ReadByteSlice())
}

// Remaining returns the number of unread bytes.
func (d *Deserializer) Remaining() int {
	return d.r.Len()
}

// Err returns the first error encountered. A clean end of input is not an error.
func (d *Deserializer) Err() error {
	if d.err == io.EOF {
		return nil
	}
	return d.err
}

// Finish is like ErrStrict and also rejects unread trailing bytes.
func (d *Deserializer) Finish() error {
	if err := d.ErrStrict(); err != nil {
		return err
	}
	if n := d.r.Len(); n != 0 {
		return fmt.Errorf("%d trailing bytes", n)
	}
	return nil
}

// ErrStrict is like Err but also reports truncated input as an error.
func (d *Deserializer) ErrStrict() error {
	if d.err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return d.err
}
