package serialization

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"go.dedis.ch/kyber/v3/suites"
)

func TestFieldsInOrder(t *testing.T) {
	suite := suites.MustFind("Ed25519")
	point := suite.Point().Pick(suite.RandomStream())

	s := NewSerializer()
	s.WriteString("election-1")
	s.WriteInt64(-7)
	s.WriteUint64(42)
	s.WriteByteSlice(nil)
	s.WriteKyber(point)
	data, err := s.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	d := NewDeserializer(data)
	if got := d.ReadString(); got != "election-1" {
		t.Errorf("ReadString() = %q", got)
	}
	if got := d.ReadInt64(); got != -7 {
		t.Errorf("ReadInt64() = %d", got)
	}
	if got := d.ReadUint64(); got != 42 {
		t.Errorf("ReadUint64() = %d", got)
	}
	if got := d.ReadByteSlice(); len(got) != 0 {
		t.Errorf("ReadByteSlice() = %x", got)
	}
	got := suite.Point()
	d.ReadKyber(got)
	if err := d.ErrStrict(); err != nil {
		t.Fatalf("ErrStrict() error = %v", err)
	}
	if !got.Equal(point) {
		t.Error("kyber point changed")
	}
	if d.Remaining() != 0 {
		t.Errorf("%d bytes left", d.Remaining())
	}
}

func TestDeserializerErrors(t *testing.T) {
	s := NewSerializer()
	s.WriteString("abcdef")
	full, _ := s.Bytes()

	huge := make([]byte, 4)
	binary.BigEndian.PutUint32(huge, maxSliceLen+1)

	tests := []struct {
		name   string
		data   []byte
		strict error
		lax    bool // whether Err reports a problem
	}{
		{"empty input", nil, io.ErrUnexpectedEOF, false},
		{"truncated body", full[:len(full)-2], nil, true},
		{"truncated prefix", full[:2], io.ErrUnexpectedEOF, true},
		{"oversized prefix", huge, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDeserializer(tt.data)
			if got := d.ReadString(); got != "" {
				t.Errorf("ReadString() = %q on bad input", got)
			}
			err := d.ErrStrict()
			if err == nil {
				t.Fatal("ErrStrict() = nil")
			}
			if tt.strict != nil && !errors.Is(err, tt.strict) {
				t.Errorf("ErrStrict() = %v, want %v", err, tt.strict)
			}
			if (d.Err() != nil) != tt.lax {
				t.Errorf("Err() = %v", d.Err())
			}
		})
	}
}

func TestReadBytes(t *testing.T) {
	d := NewDeserializer([]byte{1, 2, 3})
	first := make([]byte, 1)
	d.Read(first)
	if rest := d.ReadBytes(); !bytes.Equal(rest, []byte{2, 3}) {
		t.Errorf("ReadBytes() = %v", rest)
	}
	if rest := d.ReadBytes(); len(rest) != 0 {
		t.Errorf("ReadBytes() at end = %v", rest)
	}
}

func TestVersionedFrame(t *testing.T) {
	s := NewSerializer()
	s.WriteVersion(2)
	s.WriteInt(-3)
	frame, err := s.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	d := NewDeserializer(frame)
	d.ExpectVersion(2)
	if got := d.ReadInt(); got != -3 {
		t.Errorf("ReadInt() = %d", got)
	}
	if err := d.Finish(); err != nil {
		t.Errorf("Finish() error = %v", err)
	}

	tests := []struct {
		name    string
		data    []byte
		version byte
	}{
		{"wrong version", frame, 1},
		{"trailing byte", append(append([]byte(nil), frame...), 0), 2},
		{"truncated", frame[:4], 2},
		{"empty", nil, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDeserializer(tt.data)
			d.ExpectVersion(tt.version)
			d.ReadInt()
			if err := d.Finish(); err == nil {
				t.Error("Finish() = nil")
			}
		})
	}
}
