package heap

import (
	"reflect"
	"sync"
	"unsafe"

	"github.com/ajitpratap0/multicore/pkg/errors"
)

var (
	// ErrPointerType is returned when a typed allocation is requested for an
	// element type that holds Go pointers.
	ErrPointerType = errors.New(errors.ErrorTypeValidation, "element type contains pointers")
	// ErrAlignment is returned when an element type needs stricter alignment
	// than the heap's chunks provide.
	ErrAlignment = errors.New(errors.ErrorTypeValidation, "element alignment exceeds chunk alignment")
)

var pointerFree sync.Map // reflect.Type -> bool

// Alloc returns a zeroed slice of n elements carved from h. T must not hold
// Go pointers. Alloc with n == 0 returns nil.
func Alloc[T any](h *LocalHeap, n int) ([]T, error) {
	if n < 0 {
		return nil, ErrInvalidSize.WithDetail("count", n)
	}
	if n == 0 {
		return nil, nil
	}

	var zero T
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if !isPointerFree(typ) {
		return nil, ErrPointerType.WithDetail("type", typ.String())
	}
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		return make([]T, n), nil
	}
	if align := int(unsafe.Alignof(zero)); align > min(h.chunkSize, blockAlign) {
		return nil, ErrAlignment.WithDetail("type", typ.String()).WithDetail("align", align)
	}
	if uint64(n) > maxAllocSize/uint64(size) {
		return nil, ErrInvalidSize.WithDetail("count", n).WithDetail("type", typ.String())
	}

	b := h.alloc(n * size)
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n), nil
}

// Free returns *s to h and sets *s to nil. Freeing a nil or empty slice is a
// no-op.
func Free[T any](h *LocalHeap, s *[]T) error {
	if s == nil {
		return nil
	}
	var zero T
	if cap(*s) == 0 || unsafe.Sizeof(zero) == 0 {
		*s = nil
		return nil
	}
	if err := h.freeAt(uintptr(unsafe.Pointer(unsafe.SliceData(*s)))); err != nil {
		return err
	}
	*s = nil
	return nil
}

func isPointerFree(t reflect.Type) bool {
	if v, ok := pointerFree.Load(t); ok {
		return v.(bool)
	}
	free := scanPointerFree(t)
	pointerFree.Store(t, free)
	return free
}

func scanPointerFree(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return t.Len() == 0 || scanPointerFree(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !scanPointerFree(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
