package hlc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
	"gopkg.in/yaml.v3"

	"github.com/daviddao/hlcmail/pkg/merge"
	"github.com/daviddao/hlcmail/pkg/order"
	"github.com/daviddao/hlcmail/pkg/physical"
)

// ErrMalformedStamp is returned when a stamp cannot be decoded.
var ErrMalformedStamp = errors.New("malformed hlc stamp")

// Stamp is the logical value of a Clock: the (timestamp, counter) pair that
// is persisted and sent between processes. It carries no time source.
type Stamp struct {
	Timestamp physical.Timestamp `json:"ts" yaml:"ts"`
	Counter   uint32             `json:"counter" yaml:"counter"`
}

var (
	_ order.PartiallyComparable[Stamp] = Stamp{}
	_ merge.IdempotentMergeable[Stamp] = Stamp{}
)

// Compare orders stamps by timestamp, then counter.
func (s Stamp) Compare(other Stamp) order.PartialOrdering {
	if s.Timestamp != other.Timestamp {
		return s.Timestamp.Compare(other.Timestamp)
	}
	switch {
	case s.Counter < other.Counter:
		return order.LessThan
	case s.Counter > other.Counter:
		return order.GreaterThan
	default:
		return order.Equal
	}
}

// Merge is the plain join of two stamps: the greater of the two. Unlike
// Clock.Merge it does not count as an event, so it is idempotent.
func (s Stamp) Merge(other Stamp) Stamp {
	m, _ := order.Max(s, other)
	return m
}

// IdempotentMerge marks Stamp.Merge as a semilattice join.
func (Stamp) IdempotentMerge() {}

// IsZero reports whether s is the start of time.
func (s Stamp) IsZero() bool { return s == Stamp{} }

// String renders "<millis>.<counter>", the form ParseStamp accepts.
func (s Stamp) String() string {
	return strconv.FormatInt(int64(s.Timestamp), 10) + "." + strconv.FormatUint(uint64(s.Counter), 10)
}

// Validate rejects stamps before the start of time. Every decoder calls it,
// so no Clock rebuilt from outside input sits below StartOfTime.
func (s Stamp) Validate() error {
	if s.Timestamp < physical.Epoch {
		return fmt.Errorf("%w: timestamp %d is before the epoch", ErrMalformedStamp, int64(s.Timestamp))
	}
	return nil
}

// ParseStamp parses the "<millis>.<counter>" form. A bare "<millis>" means
// counter 0.
func ParseStamp(text string) (Stamp, error) {
	tsPart, counterPart, hasCounter := strings.Cut(strings.TrimSpace(text), ".")
	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return Stamp{}, fmt.Errorf("%w: timestamp %q: %v", ErrMalformedStamp, tsPart, err)
	}
	s := Stamp{Timestamp: physical.Timestamp(ts)}
	if err := s.Validate(); err != nil {
		return Stamp{}, err
	}
	if hasCounter {
		c, err := strconv.ParseUint(counterPart, 10, 32)
		if err != nil {
			return Stamp{}, fmt.Errorf("%w: counter %q: %v", ErrMalformedStamp, counterPart, err)
		}
		s.Counter = uint32(c)
	}
	return s, nil
}

// Protobuf field numbers of the binary form:
//
//	message Stamp { int64 ts = 1; uint32 counter = 2; }
const (
	stampTSField      protowire.Number = 1
	stampCounterField protowire.Number = 2
)

// AppendWire appends the protobuf encoding of s to b.
func (s Stamp) AppendWire(b []byte) []byte {
	if s.Timestamp != 0 {
		b = protowire.AppendTag(b, stampTSField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.Timestamp))
	}
	if s.Counter != 0 {
		b = protowire.AppendTag(b, stampCounterField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.Counter))
	}
	return b
}

// MarshalBinary encodes s in protobuf wire format.
func (s Stamp) MarshalBinary() ([]byte, error) {
	return s.AppendWire(nil), nil
}

// UnmarshalBinary decodes the protobuf wire format, skipping unknown fields.
func (s *Stamp) UnmarshalBinary(data []byte) error {
	var out Stamp
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedStamp, protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == stampTSField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("%w: ts: %v", ErrMalformedStamp, protowire.ParseError(n))
			}
			out.Timestamp = physical.Timestamp(int64(v))
			data = data[n:]
		case num == stampCounterField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("%w: counter: %v", ErrMalformedStamp, protowire.ParseError(n))
			}
			if v > math.MaxUint32 {
				return fmt.Errorf("%w: counter %d overflows uint32", ErrMalformedStamp, v)
			}
			out.Counter = uint32(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformedStamp, num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*s = out
	return nil
}

// stampFields has Stamp's layout without its methods, so decoding into it
// does not recurse.
type stampFields Stamp

// UnmarshalJSON decodes {"ts": <ms>, "counter": <n>}.
func (s *Stamp) UnmarshalJSON(data []byte) error {
	var f stampFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if err := Stamp(f).Validate(); err != nil {
		return err
	}
	*s = Stamp(f)
	return nil
}

// UnmarshalYAML decodes the same mapping as UnmarshalJSON.
func (s *Stamp) UnmarshalYAML(value *yaml.Node) error {
	var f stampFields
	if err := value.Decode(&f); err != nil {
		return err
	}
	if err := Stamp(f).Validate(); err != nil {
		return err
	}
	*s = Stamp(f)
	return nil
}
