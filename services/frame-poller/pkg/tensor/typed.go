// services/frame-poller/pkg/tensor/typed.go
package tensor

import (
	"encoding/binary"
	"fmt"
)

// element is the set of Go types an Array can hold.
type element interface {
	uint8 | uint16 | int16 | int32 | int64 | float32 | float64
}

func dtypeOf[T element]() DType {
	var v T
	switch any(v).(type) {
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case float32:
		return Float32
	case float64:
		return Float64
	}
	return Invalid
}

func from[T element](values []T, shape []int) (Array, error) {
	dt := dtypeOf[T]()
	n, err := numElements(shape)
	if err != nil {
		return Array{}, err
	}
	if n != len(values) {
		return Array{}, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(values), shape)
	}
	data, err := binary.Append(make([]byte, 0, n*dt.Size()), le, values)
	if err != nil {
		return Array{}, fmt.Errorf("tensor: encode %s: %w", dt, err)
	}
	return Array{Shape: cloneShape(shape), DType: dt, Data: data}, nil
}

func values[T element](a Array) ([]T, error) {
	dt := dtypeOf[T]()
	if a.DType != dt {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrDType, a.DType, dt)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	out := make([]T, a.Len())
	if _, err := binary.Decode(a.Data, le, out); err != nil {
		return nil, fmt.Errorf("tensor: decode %s: %w", dt, err)
	}
	return out, nil
}

func FromUint8(shape []int, v []uint8) (Array, error)     { return from(v, shape) }
func FromUint16(shape []int, v []uint16) (Array, error)   { return from(v, shape) }
func FromInt16(shape []int, v []int16) (Array, error)     { return from(v, shape) }
func FromInt32(shape []int, v []int32) (Array, error)     { return from(v, shape) }
func FromInt64(shape []int, v []int64) (Array, error)     { return from(v, shape) }
func FromFloat32(shape []int, v []float32) (Array, error) { return from(v, shape) }
func FromFloat64(shape []int, v []float64) (Array, error) { return from(v, shape) }

func (a Array) Uint8s() ([]uint8, error)     { return values[uint8](a) }
func (a Array) Uint16s() ([]uint16, error)   { return values[uint16](a) }
func (a Array) Int16s() ([]int16, error)     { return values[int16](a) }
func (a Array) Int32s() ([]int32, error)     { return values[int32](a) }
func (a Array) Int64s() ([]int64, error)     { return values[int64](a) }
func (a Array) Float32s() ([]float32, error) { return values[float32](a) }
func (a Array) Float64s() ([]float64, error) { return values[float64](a) }
