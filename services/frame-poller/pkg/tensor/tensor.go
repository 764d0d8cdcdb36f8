// services/frame-poller/pkg/tensor/tensor.go

// Package tensor is a minimal dense n-dimensional array: a shape, an element
// type and little-endian row-major bytes.
package tensor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrShape is returned when a shape does not match the data.
	ErrShape = errors.New("tensor: shape mismatch")
	// ErrDType is returned for an unknown dtype or a typed access of the wrong dtype.
	ErrDType = errors.New("tensor: dtype mismatch")
)

// DType is the element type of an Array.
type DType uint8

const (
	Invalid DType = iota
	Uint8
	Uint16
	Int16
	Int32
	Int64
	Float32
	Float64
)

var dtypeNames = [...]string{
	Invalid: "invalid",
	Uint8:   "uint8",
	Uint16:  "uint16",
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
	Float32: "float32",
	Float64: "float64",
}

var dtypeSizes = [...]int{
	Invalid: 0,
	Uint8:   1,
	Uint16:  2,
	Int16:   2,
	Int32:   4,
	Int64:   8,
	Float32: 4,
	Float64: 8,
}

func (d DType) String() string {
	if int(d) < len(dtypeNames) {
		return dtypeNames[d]
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// Size is the element width in bytes; 0 for unknown dtypes.
func (d DType) Size() int {
	if int(d) < len(dtypeSizes) {
		return dtypeSizes[d]
	}
	return 0
}

// Valid reports whether d is a known element type.
func (d DType) Valid() bool { return d.Size() > 0 }

// ParseDType accepts the long names ("float32") and numpy-style short ones ("f4", "u2").
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uint8", "u1":
		return Uint8, nil
	case "uint16", "u2":
		return Uint16, nil
	case "int16", "i2":
		return Int16, nil
	case "int32", "i4":
		return Int32, nil
	case "int64", "i8":
		return Int64, nil
	case "float32", "f4":
		return Float32, nil
	case "float64", "f8":
		return Float64, nil
	}
	return Invalid, fmt.Errorf("%w: unknown dtype %q", ErrDType, s)
}

// Array is a dense array. Data holds Len()*DType.Size() bytes.
type Array struct {
	Shape []int
	DType DType
	Data  []byte
}

// Zeros allocates a zero-filled array.
func Zeros(dtype DType, shape ...int) (Array, error) {
	if !dtype.Valid() {
		return Array{}, fmt.Errorf("%w: %s", ErrDType, dtype)
	}
	nb, err := numBytes(shape, dtype)
	if err != nil {
		return Array{}, err
	}
	return Array{Shape: cloneShape(shape), DType: dtype, Data: make([]byte, nb)}, nil
}

// NDim is the number of dimensions.
func (a Array) NDim() int { return len(a.Shape) }

// Len is the number of elements.
func (a Array) Len() int {
	n, _ := numElements(a.Shape)
	return n
}

// Validate checks dtype and that Data length matches the shape.
func (a Array) Validate() error {
	if !a.DType.Valid() {
		return fmt.Errorf("%w: %s", ErrDType, a.DType)
	}
	want, err := numBytes(a.Shape, a.DType)
	if err != nil {
		return err
	}
	if len(a.Data) != want {
		return fmt.Errorf("%w: shape %v of %s needs %d bytes, got %d", ErrShape, a.Shape, a.DType, want, len(a.Data))
	}
	return nil
}

// Unsqueeze prepends a unit dimension: (H, W) becomes (1, H, W).
// The result shares Data with a.
func (a Array) Unsqueeze() Array {
	shape := make([]int, 0, len(a.Shape)+1)
	shape = append(shape, 1)
	shape = append(shape, a.Shape...)
	return Array{Shape: shape, DType: a.DType, Data: a.Data}
}

// Reshape returns a view with a different shape and the same element count.
func (a Array) Reshape(shape ...int) (Array, error) {
	n, err := numElements(shape)
	if err != nil {
		return Array{}, err
	}
	if n != a.Len() {
		return Array{}, fmt.Errorf("%w: cannot reshape %v into %v", ErrShape, a.Shape, shape)
	}
	return Array{Shape: cloneShape(shape), DType: a.DType, Data: a.Data}, nil
}

// Clone returns a deep copy.
func (a Array) Clone() Array {
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	return Array{Shape: cloneShape(a.Shape), DType: a.DType, Data: data}
}

// Equal reports whether shapes, dtypes and bytes are identical.
func (a Array) Equal(b Array) bool {
	if a.DType != b.DType || len(a.Shape) != len(b.Shape) || len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return string(a.Data) == string(b.Data)
}

func (a Array) String() string {
	return fmt.Sprintf("%s%v", a.DType, a.Shape)
}

func numElements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension in %v", ErrShape, shape)
		}
		if d != 0 && n > math.MaxInt/d {
			return 0, fmt.Errorf("%w: %v overflows the element count", ErrShape, shape)
		}
		n *= d
	}
	return n, nil
}

// numBytes is numElements times the element size, checked for overflow.
func numBytes(shape []int, dt DType) (int, error) {
	n, err := numElements(shape)
	if err != nil {
		return 0, err
	}
	if sz := dt.Size(); sz > 0 && n > math.MaxInt/sz {
		return 0, fmt.Errorf("%w: %v of %s overflows the byte length", ErrShape, shape, dt)
	}
	return n * dt.Size(), nil
}

func cloneShape(s []int) []int {
	out := make([]int, len(s))
	copy(out, s)
	return out
}

var le = binary.LittleEndian
