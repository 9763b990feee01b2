// Package registry implements the BufferRegistry (§4.3): the collection of
// all LeafBuffers for the current job, keyed by primitive type, plus each
// type's list of flatten indices.
package registry

import (
	"fmt"

	"github.com/vukanj/rootranger/internal/leafbuf"
	"github.com/vukanj/rootranger/internal/leaftype"
)

// Registry owns every leaf buffer allocated for one job. It is created
// empty at job start, populated by the analyzer, and torn down (Clear) at
// job end (§4.3, §5).
type Registry struct {
	buffers    map[leaftype.Code][]leafbuf.Buffer
	flattenIdx map[leaftype.Code][]int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		buffers:    make(map[leaftype.Code][]leafbuf.Buffer),
		flattenIdx: make(map[leaftype.Code][]int),
	}
}

// Append allocates a new buffer of the given type and capacity, appends it
// to that type's list, and returns the buffer plus its index within the
// list. When flatten is true, the index is also recorded in that type's
// flatten-index list (§4.3 append).
//
// Growing r.buffers[code] never invalidates a previously returned Buffer's
// own storage: each Buffer is a pointer to a heap-allocated struct, so the
// outer slice reallocating on growth only copies interface values (pointers),
// never the pointed-to element arrays. The "no reallocation of the owning
// list after binding" invariant in §4.3/§5 is therefore automatically
// satisfied — see the leafbuf package doc for the same point.
func (r *Registry) Append(code leaftype.Code, cap int, flatten bool) (leafbuf.Buffer, int, error) {
	buf, err := leafbuf.Acquire(code, cap)
	if err != nil {
		return nil, 0, err
	}
	idx := len(r.buffers[code])
	r.buffers[code] = append(r.buffers[code], buf)
	if flatten {
		r.flattenIdx[code] = append(r.flattenIdx[code], idx)
	}
	return buf, idx, nil
}

// StepAll shifts element i into slot 0 for every buffer marked for
// flattening, across every primitive type, in the deterministic type order
// given by leaftype.All (§4.3 step_all). A buffer whose capacity is not
// larger than i (a leaf aligned to a different, shorter dimension leaf) is
// left unchanged.
func (r *Registry) StepAll(i int) {
	for _, code := range leaftype.All {
		for _, idx := range r.flattenIdx[code] {
			if buf := r.buffers[code][idx]; i < buf.Cap() {
				buf.Increment(i)
			}
		}
	}
}

// Buffers returns every buffer of the given type, in append order.
func (r *Registry) Buffers(code leaftype.Code) []leafbuf.Buffer {
	return r.buffers[code]
}

// Len returns the total number of buffers held across all types, for
// diagnostics and tests.
func (r *Registry) Len() int {
	n := 0
	for _, code := range leaftype.All {
		n += len(r.buffers[code])
	}
	return n
}

// Clear releases every buffer back to the leafbuf pool and resets the
// registry to empty, ready for the next job (§4.3 clear, §4.6 step c).
func (r *Registry) Clear() {
	for _, code := range leaftype.All {
		for _, buf := range r.buffers[code] {
			leafbuf.Release(buf)
		}
	}
	r.buffers = make(map[leaftype.Code][]leafbuf.Buffer)
	r.flattenIdx = make(map[leaftype.Code][]int)
}

// MustValidCode returns an error wrapping UnknownLeafType-shaped context if
// code is outside the closed primitive set; callers attach the taxonomy
// kind (§7).
func MustValidCode(code leaftype.Code) error {
	if !leaftype.Valid(code) {
		return fmt.Errorf("registry: unknown primitive type code %q", byte(code))
	}
	return nil
}
