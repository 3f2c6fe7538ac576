package session

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	recordFormatVersionCurrent = 1

	recordHeaderSize = 1 + 8 + 8

	// MaxAttributesBytes bounds the encoded attribute payload of one record.
	MaxAttributesBytes = 64 << 10
)

// ErrRecordTooLarge is returned by [Encode] when the attributes exceed [MaxAttributesBytes].
var ErrRecordTooLarge = errors.New("session record too large")

// Record is a persisted session: attributes plus absolute lifetime bounds.
// Records are immutable once written.
type Record struct {
	Key        string
	Attributes Attributes
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the record is no longer loadable at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Encode serializes r as
//
//	version(1) | created unix(8, BE) | expires unix(8, BE) | attributes JSON
//
// The key is not part of the envelope; stores keep it out of band.
func Encode(r *Record) ([]byte, error) {
	attrs := r.Attributes
	if attrs == nil {
		attrs = Attributes{}
	}
	payload, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	if len(payload) > MaxAttributesBytes {
		return nil, ErrRecordTooLarge
	}

	var buf bytes.Buffer
	buf.Grow(recordHeaderSize + len(payload))

	buf.WriteByte(recordFormatVersionCurrent)
	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt.Unix()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt.Unix()); err != nil {
		return nil, err
	}
	buf.Write(payload)

	return buf.Bytes(), nil
}

// Decode parses a record envelope. Every failure wraps [ErrRecordCorrupt].
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordCorrupt, err)
	}
	if version != recordFormatVersionCurrent {
		return nil, fmt.Errorf("%w: unknown record version %d", ErrRecordCorrupt, version)
	}

	var created, expires int64
	if err := binary.Read(reader, binary.BigEndian, &created); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordCorrupt, err)
	}
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordCorrupt, err)
	}

	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordCorrupt, err)
	}
	if len(payload) > MaxAttributesBytes {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrRecordCorrupt, MaxAttributesBytes)
	}

	attrs := Attributes{}
	if err := json.Unmarshal(payload, &attrs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordCorrupt, err)
	}
	if attrs == nil {
		// payload was the JSON literal null
		attrs = Attributes{}
	}

	return &Record{
		Attributes: attrs,
		CreatedAt:  time.Unix(created, 0),
		ExpiresAt:  time.Unix(expires, 0),
	}, nil
}
