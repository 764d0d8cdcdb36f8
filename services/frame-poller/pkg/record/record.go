// services/frame-poller/pkg/record/record.go

// Package record is the wire format shared by every transport: a small
// protobuf message encoded by hand with protowire.
//
//	message Frame {
//	  int64  origin_id = 1;
//	  int64  index     = 2;
//	  uint32 dtype     = 3;
//	  repeated uint32 shape = 4 [packed = true];
//	  bytes  data      = 5;
//	}
package record

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/tensor"
)

const (
	fieldOriginID protowire.Number = 1
	fieldIndex    protowire.Number = 2
	fieldDType    protowire.Number = 3
	fieldShape    protowire.Number = 4
	fieldData     protowire.Number = 5
)

// ErrMalformed is returned for bytes that are not a valid frame.
var ErrMalformed = errors.New("record: malformed frame")

// Marshal encodes r.
func Marshal(r reader.Record) []byte {
	p := r.Payload
	b := make([]byte, 0, len(p.Data)+32)

	b = protowire.AppendTag(b, fieldOriginID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.OriginID))
	b = protowire.AppendTag(b, fieldIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Index))
	b = protowire.AppendTag(b, fieldDType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.DType))

	if len(p.Shape) > 0 {
		var packed []byte
		for _, d := range p.Shape {
			packed = protowire.AppendVarint(packed, uint64(d))
		}
		b = protowire.AppendTag(b, fieldShape, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}

	b = protowire.AppendTag(b, fieldData, protowire.BytesType)
	b = protowire.AppendBytes(b, p.Data)
	return b
}

// Unmarshal decodes a frame and validates its payload. Unknown fields are skipped.
// The payload's Data is a copy, not an alias of b.
func Unmarshal(b []byte) (reader.Record, error) {
	var (
		rec   reader.Record
		shape []int
		data  []byte
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return reader.Record{}, fmt.Errorf("%w: tag: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldOriginID && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return reader.Record{}, fmt.Errorf("%w: origin_id: %v", ErrMalformed, protowire.ParseError(m))
			}
			rec.OriginID, n = int64(v), m
		case num == fieldIndex && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return reader.Record{}, fmt.Errorf("%w: index: %v", ErrMalformed, protowire.ParseError(m))
			}
			rec.Index, n = int64(v), m
		case num == fieldDType && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return reader.Record{}, fmt.Errorf("%w: dtype: %v", ErrMalformed, protowire.ParseError(m))
			}
			rec.Payload.DType, n = tensor.DType(v), m
		case num == fieldShape && typ == protowire.BytesType:
			packed, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return reader.Record{}, fmt.Errorf("%w: shape: %v", ErrMalformed, protowire.ParseError(m))
			}
			for len(packed) > 0 {
				d, k := protowire.ConsumeVarint(packed)
				if k < 0 {
					return reader.Record{}, fmt.Errorf("%w: shape dim: %v", ErrMalformed, protowire.ParseError(k))
				}
				shape = append(shape, int(d))
				packed = packed[k:]
			}
			n = m
		case num == fieldShape && typ == protowire.VarintType:
			// неупакованное repeated-поле тоже допустимо
			d, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return reader.Record{}, fmt.Errorf("%w: shape dim: %v", ErrMalformed, protowire.ParseError(m))
			}
			shape = append(shape, int(d))
			n = m
		case num == fieldData && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return reader.Record{}, fmt.Errorf("%w: data: %v", ErrMalformed, protowire.ParseError(m))
			}
			data, n = v, m
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return reader.Record{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
			}
			n = m
		}
		b = b[n:]
	}

	rec.Payload.Shape = shape
	rec.Payload.Data = append([]byte(nil), data...)
	if err := rec.Payload.Validate(); err != nil {
		return reader.Record{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return rec, nil
}
