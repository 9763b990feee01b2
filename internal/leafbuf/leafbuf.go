// Package leafbuf implements the per-primitive-type fixed-capacity staging
// area (§4.2) that backs both the input read address and the output write
// address for one leaf.
//
// A LeafBuffer's backing array lives behind a pointer (the struct itself is
// heap-allocated and handed out as a Buffer interface value), so unlike the
// original implementation's std::vector-backed storage, growing the slice
// that HOLDS a Buffer never moves the buffer's own element storage. The
// "stable address" invariant in §4.3/§5 falls out of Go's pointer semantics
// for free; BufferRegistry still must not replace a Buffer value once bound,
// but it is free to grow its own slice-of-Buffer around it.
package leafbuf

import (
	"fmt"
	"sync"

	"golang.org/x/exp/constraints"

	"github.com/vukanj/rootranger/internal/leaftype"
)

// Numeric is the closed primitive set a LeafBuffer may hold (§3): every
// integer and float width constraints.Integer/constraints.Float cover, plus
// bool (which neither constraint includes, since the HEP primitive set
// treats bool as its own one-byte code rather than an IEEE numeric type).
type Numeric interface {
	constraints.Integer | constraints.Float | ~bool
}

// Buffer is the type-erased interface every LeafBuffer[T] satisfies, letting
// BufferRegistry hold one flat collection of leaf buffers across the closed
// primitive set (the "tagged variant" strategy favored by §9's design notes
// over ten parallel typed containers).
type Buffer interface {
	// Code reports the buffer's primitive type.
	Code() leaftype.Code
	// Cap returns the buffer's fixed capacity.
	Cap() int
	// Increment copies buffer[i] into buffer[0] (§4.2). No bounds check: the
	// caller guarantees i is within the pre-scanned maximum.
	Increment(i int)
	// Addr returns the stable address of slot 0, suitable for handing to the
	// tree-file collaborator's address-binding API.
	Addr() any
	// Get returns the value at index i, boxed.
	Get(i int) any
	// Set assigns the value at index i from a boxed value of the matching type.
	Set(i int, v any) error
}

type typedBuffer[T Numeric] struct {
	code leaftype.Code
	data []T
}

func (b *typedBuffer[T]) Code() leaftype.Code { return b.code }
func (b *typedBuffer[T]) Cap() int            { return len(b.data) }
func (b *typedBuffer[T]) Increment(i int)     { b.data[0] = b.data[i] }
func (b *typedBuffer[T]) Addr() any           { return &b.data[0] }
func (b *typedBuffer[T]) Get(i int) any       { return b.data[i] }

func (b *typedBuffer[T]) Set(i int, v any) error {
	tv, ok := v.(T)
	if !ok {
		return fmt.Errorf("leafbuf: value %v (%T) does not match buffer type %s", v, v, leaftype.Name(b.code))
	}
	b.data[i] = tv
	return nil
}

// New allocates a zero-initialised buffer of capacity cap for the given
// primitive type. Fails only if cap < 1 or code is outside the closed set
// (§7 UnknownLeafType, resolved to a plain error here — callers attach the
// taxonomy kind).
func New(code leaftype.Code, cap int) (Buffer, error) {
	if cap < 1 {
		return nil, fmt.Errorf("leafbuf: capacity must be >= 1, got %d", cap)
	}
	switch code {
	case leaftype.Int8:
		return &typedBuffer[int8]{code: code, data: make([]int8, cap)}, nil
	case leaftype.Uint8:
		return &typedBuffer[uint8]{code: code, data: make([]uint8, cap)}, nil
	case leaftype.Int16:
		return &typedBuffer[int16]{code: code, data: make([]int16, cap)}, nil
	case leaftype.Uint16:
		return &typedBuffer[uint16]{code: code, data: make([]uint16, cap)}, nil
	case leaftype.Int32:
		return &typedBuffer[int32]{code: code, data: make([]int32, cap)}, nil
	case leaftype.Uint32:
		return &typedBuffer[uint32]{code: code, data: make([]uint32, cap)}, nil
	case leaftype.Float32:
		return &typedBuffer[float32]{code: code, data: make([]float32, cap)}, nil
	case leaftype.Float64:
		return &typedBuffer[float64]{code: code, data: make([]float64, cap)}, nil
	case leaftype.Int64:
		return &typedBuffer[int64]{code: code, data: make([]int64, cap)}, nil
	case leaftype.Uint64:
		return &typedBuffer[uint64]{code: code, data: make([]uint64, cap)}, nil
	case leaftype.Bool:
		return &typedBuffer[bool]{code: code, data: make([]bool, cap)}, nil
	default:
		return nil, fmt.Errorf("leafbuf: unknown primitive type code %q", byte(code))
	}
}

// pools caches retired buffers keyed by type code so a Pipeline running many
// jobs in one process amortises allocation the way the teacher's
// sync.Pool-backed byte buffer pool does for I/O scratch space — adapted
// here to typed reuse instead of raw bytes: one pool per type code, whose
// buffers are reused only for a request of the same capacity.
var pools sync.Map // leaftype.Code -> *sync.Pool

func poolFor(code leaftype.Code) *sync.Pool {
	if p, ok := pools.Load(code); ok {
		return p.(*sync.Pool)
	}
	p := &sync.Pool{}
	actual, _ := pools.LoadOrStore(code, p)
	return actual.(*sync.Pool)
}

// Acquire returns a buffer of the requested type and capacity, reusing a
// retired buffer of exactly that capacity from the pool when available. Reused
// buffers are always returned zero-initialised.
func Acquire(code leaftype.Code, cap int) (Buffer, error) {
	if !leaftype.Valid(code) {
		return nil, fmt.Errorf("leafbuf: unknown primitive type code %q", byte(code))
	}
	if pooled, ok := poolFor(code).Get().(Buffer); ok {
		if pooled.Cap() == cap {
			for i := 0; i < pooled.Cap(); i++ {
				_ = pooled.Set(i, zeroOf(code))
			}
			return pooled, nil
		}
		// Capacity mismatch: this retired buffer can't serve the request
		// without violating "cap never shrinks/grows mid-job"; let it be
		// collected and allocate fresh instead of forcing a resize.
	}
	return New(code, cap)
}

// Release retires a buffer to the pool for reuse by a later job. Callers
// must not touch buf again after releasing it, and must only release
// buffers that are no longer bound to any tree-file address.
func Release(buf Buffer) {
	if buf == nil {
		return
	}
	poolFor(buf.Code()).Put(buf)
}

func zeroOf(code leaftype.Code) any {
	switch code {
	case leaftype.Int8:
		return int8(0)
	case leaftype.Uint8:
		return uint8(0)
	case leaftype.Int16:
		return int16(0)
	case leaftype.Uint16:
		return uint16(0)
	case leaftype.Int32:
		return int32(0)
	case leaftype.Uint32:
		return uint32(0)
	case leaftype.Float32:
		return float32(0)
	case leaftype.Float64:
		return float64(0)
	case leaftype.Int64:
		return int64(0)
	case leaftype.Uint64:
		return uint64(0)
	case leaftype.Bool:
		return false
	default:
		return nil
	}
}
