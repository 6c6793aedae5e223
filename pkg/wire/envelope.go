// Package wire defines the envelope a message travels in between nodes that
// do not share a database: a unique ID, the sender's HLC stamp and an opaque
// body, encoded in protobuf wire format.
//
//	message Envelope {
//	  bytes  id    = 1;  // 16-byte UUIDv7
//	  string from  = 2;
//	  string to    = 3;
//	  Stamp  stamp = 4;
//	  bytes  body  = 5;
//	}
package wire

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/daviddao/hlcmail/pkg/hlc"
)

// ErrMalformedEnvelope is returned when an envelope cannot be decoded.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// ContentType is the media type of an encoded Envelope.
const ContentType = "application/x-protobuf"

const (
	fieldID    protowire.Number = 1
	fieldFrom  protowire.Number = 2
	fieldTo    protowire.Number = 3
	fieldStamp protowire.Number = 4
	fieldBody  protowire.Number = 5
)

// Envelope is a message stamped by its sender.
type Envelope struct {
	ID    uuid.UUID
	From  string
	To    string
	Stamp hlc.Stamp
	Body  []byte
}

// NewEnvelope returns an envelope with a fresh time-ordered ID.
func NewEnvelope(from, to string, stamp hlc.Stamp, body []byte) (*Envelope, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("new envelope id: %w", err)
	}
	return &Envelope{ID: id, From: from, To: to, Stamp: stamp, Body: body}, nil
}

// Marshal encodes e. Empty fields are omitted.
func (e *Envelope) Marshal() []byte {
	var b []byte
	if e.ID != uuid.Nil {
		b = protowire.AppendTag(b, fieldID, protowire.BytesType)
		b = protowire.AppendBytes(b, e.ID[:])
	}
	if e.From != "" {
		b = protowire.AppendTag(b, fieldFrom, protowire.BytesType)
		b = protowire.AppendString(b, e.From)
	}
	if e.To != "" {
		b = protowire.AppendTag(b, fieldTo, protowire.BytesType)
		b = protowire.AppendString(b, e.To)
	}
	if !e.Stamp.IsZero() {
		b = protowire.AppendTag(b, fieldStamp, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Stamp.AppendWire(nil))
	}
	if len(e.Body) > 0 {
		b = protowire.AppendTag(b, fieldBody, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Body)
	}
	return b
}

// Unmarshal decodes data into e, skipping fields it does not know.
func (e *Envelope) Unmarshal(data []byte) error {
	var out Envelope
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedEnvelope, protowire.ParseError(n))
		}
		data = data[n:]

		if typ != protowire.BytesType || num < fieldID || num > fieldBody {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformedEnvelope, num, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformedEnvelope, num, protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldID:
			id, err := uuid.FromBytes(v)
			if err != nil {
				return fmt.Errorf("%w: id: %v", ErrMalformedEnvelope, err)
			}
			out.ID = id
		case fieldFrom:
			if !utf8.Valid(v) {
				return fmt.Errorf("%w: from is not valid UTF-8", ErrMalformedEnvelope)
			}
			out.From = string(v)
		case fieldTo:
			if !utf8.Valid(v) {
				return fmt.Errorf("%w: to is not valid UTF-8", ErrMalformedEnvelope)
			}
			out.To = string(v)
		case fieldStamp:
			if err := out.Stamp.UnmarshalBinary(v); err != nil {
				return fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
			}
		case fieldBody:
			out.Body = append([]byte(nil), v...)
		}
	}
	*e = out
	return nil
}
