// common/safe/safe.go
package safe

import (
	"fmt"
	"runtime/debug"
)

// PanicError: паника, пойманная Call и превращённая в ошибку.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic recovered: %v", e.Value) }

// Unwrap отдаёт исходную ошибку, если паника была вызвана error-значением.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Call выполняет fn и превращает панику в *PanicError.
func Call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// Call2: Call для функций, возвращающих значение и признак наличия.
func Call2[T any](fn func() (T, bool, error)) (v T, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, ok, err = zero, false, &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
