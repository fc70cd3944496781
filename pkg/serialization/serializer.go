package serialization

import (
	"bytes"
	"encoding/binary"

	"go.dedis.ch/kyber/v3"
)

// Serializer appends big-endian fields to a buffer. The first error sticks
// and every later write becomes a no-op.
type Serializer struct {
	buf *bytes.Buffer
	err error
}

func NewSerializer() *Serializer {
	return &Serializer{buf: new(bytes.Buffer)}
}

func (s *Serializer) Write(data []byte) {
	if s.err != nil {
		return
	}
	_, s.err = s.buf.Write(data)
}

func (s *Serializer) WriteUint64(u uint64) {
	if s.err != nil {
		return
	}
	s.err = binary.Write(s.buf, binary.BigEndian, u)
}

func (s *Serializer) WriteInt64(i int64) {
	if s.err != nil {
		return
	}
	s.err = binary.Write(s.buf, binary.BigEndian, i)
}

// WriteInt writes a platform int as a big-endian int64.
func (s *Serializer) WriteInt(i int) {
	s.WriteInt64(int64(i))
}

// WriteVersion writes a single format version byte.
func (s *Serializer) WriteVersion(v byte) {
	s.Write([]byte{v})
}

func (s *Serializer) WriteKyber(obj ...kyber.Marshaling) {
	if s.err != nil {
		return
	}
	for _, o := range obj {
		_, s.err = o.MarshalTo(s.buf)
		if s.err != nil {
			return
		}
	}
}

// WriteByteSlice writes a length-prefixed byte slice.
func (s *Serializer) WriteByteSlice(b []byte) {
	if s.err != nil {
		return
	}
	s.err = binary.Write(s.buf, binary.BigEndian, uint32(len(b)))
	if s.err != nil {
		return
	}
	s.Write(b)
}

// WriteString writes a length-prefixed UTF-8 string.
func (s *Serializer) WriteString(str string) {
	s.WriteByteSlice([]byte(str))
}

func (s *Serializer) Bytes() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.buf.Bytes(), nil
}
