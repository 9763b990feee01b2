// Package faketree is an in-memory implementation of treeio.TreeFile/Tree
// used by tests in place of the real analysis-framework tree library. It
// keeps every leaf's per-event values boxed as float64 (mirroring the
// teacher's own Dataset.Read() convention of normalising every numeric HDF5
// datatype to []float64 "for convenience") and converts at the Slot
// boundary: on read, to the bound slot's own element type when the slot
// reports one (as leafbuf.Buffer does), else to the leaf's declared type.
package faketree

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/vukanj/rootranger/internal/leaftype"
	"github.com/vukanj/rootranger/internal/treeio"
)

// Backend is a treeio.Opener backed by an in-process registry of named
// "files", each a set of directories and trees. Tests build fixtures with
// NewTree/AddXxx and register them via Backend.Put before exercising the
// engine against the path.
type Backend struct {
	mu    sync.Mutex
	files map[string]*File
}

// NewBackend returns an empty faketree backend.
func NewBackend() *Backend {
	return &Backend{files: make(map[string]*File)}
}

// Put registers a pre-built file under path, as if it had been written to
// disk. Overwrites any previous registration at the same path.
func (b *Backend) Put(path string, f *File) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[path] = f
}

// OpenRead implements treeio.Opener.
func (b *Backend) OpenRead(path string) (treeio.TreeFile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.files[path]
	if !ok {
		return nil, fmt.Errorf("faketree: no such file %q", path)
	}
	if f.zombie {
		return nil, fmt.Errorf("faketree: file %q is damaged", path)
	}
	return f, nil
}

// Create implements treeio.Opener: it creates an empty file at path,
// replacing any existing one when overwrite is true. When overwrite is false
// and a file is already registered at path, that file is returned as is.
func (b *Backend) Create(path string, overwrite bool) (treeio.TreeFile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.files[path]; ok && !overwrite {
		return existing, nil
	}
	f := newFile()
	b.files[path] = f
	return f, nil
}

// Remove implements treeio.Opener: it deletes the registered file at path,
// if present.
func (b *Backend) Remove(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.files, path)
	return nil
}

// File is an in-memory tree-file: directories plus top-level and
// directory-scoped trees.
type File struct {
	mu      sync.Mutex
	zombie  bool
	dirs    map[string]bool
	top     map[string]*Tree
	nested  map[string]map[string]*Tree
	closed  bool
}

func newFile() *File {
	return &File{
		dirs:   make(map[string]bool),
		top:    make(map[string]*Tree),
		nested: make(map[string]map[string]*Tree),
	}
}

// NewFile returns an empty fixture file, ready for AddTree/AddDir/
// AddNestedTree calls and registration via Backend.Put.
func NewFile() *File {
	return newFile()
}

// FileNames returns the paths currently registered with the backend, for
// tests asserting on temporary-file lifecycle.
func (b *Backend) FileNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.files))
	for name := range b.files {
		names = append(names, name)
	}
	return names
}

// NewZombieFile returns a file that reports itself as damaged on open,
// modelling §7's InputCorrupt case.
func NewZombieFile() *File {
	f := newFile()
	f.zombie = true
	return f
}

// AddDir registers a subdirectory name (for JobValidityCheck path tests).
func (f *File) AddDir(name string) *File {
	f.dirs[name] = true
	return f
}

// AddTree registers a top-level tree.
func (f *File) AddTree(t *Tree) *File {
	f.top[t.name] = t
	return f
}

// AddNestedTree registers a tree inside a subdirectory.
func (f *File) AddNestedTree(dir string, t *Tree) *File {
	f.dirs[dir] = true
	if f.nested[dir] == nil {
		f.nested[dir] = make(map[string]*Tree)
	}
	f.nested[dir][t.name] = t
	return f
}

func (f *File) DirExists(dir string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirs[dir]
}

func (f *File) TreeExists(dir, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if dir == "" {
		_, ok := f.top[name]
		return ok
	}
	m, ok := f.nested[dir]
	if !ok {
		return false
	}
	_, ok = m[name]
	return ok
}

func (f *File) Tree(dir, name string) (treeio.Tree, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if dir == "" {
		t, ok := f.top[name]
		if !ok {
			return nil, fmt.Errorf("faketree: no such tree %q", name)
		}
		return t, nil
	}
	m, ok := f.nested[dir]
	if !ok {
		return nil, fmt.Errorf("faketree: no such directory %q", dir)
	}
	t, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("faketree: no such tree %q in directory %q", name, dir)
	}
	return t, nil
}

func (f *File) NewTree(name string) treeio.Tree {
	return NewTree(name)
}

func (f *File) WriteTree(t treeio.Tree, overwrite bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ft, ok := t.(*Tree)
	if !ok {
		return fmt.Errorf("faketree: WriteTree requires a *faketree.Tree, got %T", t)
	}
	if _, exists := f.top[ft.name]; exists && !overwrite {
		return fmt.Errorf("faketree: tree %q already exists", ft.name)
	}
	f.top[ft.name] = ft
	return nil
}

func (f *File) DeleteKey(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.top, name)
	return nil
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// eventValue holds one leaf's value for one event, boxed as float64.
type eventValue struct {
	scalar float64
	array  []float64
}

type leafRecord struct {
	desc   treeio.LeafDescriptor
	values []eventValue
}

// Tree is an in-memory record-stream.
type Tree struct {
	name     string
	title    string
	order    []string
	leaves   map[string]*leafRecord
	nEntries int64

	active    map[string]bool
	inputBind map[string]treeio.Slot

	outBindings []outputBinding
	outIndex    map[string]int
}

type outputBinding struct {
	name  string
	slot  treeio.Slot
	code  leaftype.Code
	width int
	title string
}

// NewTree returns an empty fixture tree ready for AddScalar/AddConstArray/
// AddVariableArray calls.
func NewTree(name string) *Tree {
	return &Tree{
		name:      name,
		title:     name,
		leaves:    make(map[string]*leafRecord),
		active:    make(map[string]bool),
		inputBind: make(map[string]treeio.Slot),
		outIndex:  make(map[string]int),
	}
}

func (t *Tree) setEntries(n int) error {
	if t.nEntries == 0 && len(t.leaves) == 0 {
		t.nEntries = int64(n)
		return nil
	}
	if int64(n) != t.nEntries {
		return fmt.Errorf("faketree: row count mismatch: tree has %d events, leaf provides %d", t.nEntries, n)
	}
	return nil
}

// AddScalar registers a scalar leaf with one value per event.
func (t *Tree) AddScalar(name string, code leaftype.Code, values []float64) *Tree {
	if err := t.setEntries(len(values)); err != nil {
		panic(err)
	}
	evs := make([]eventValue, len(values))
	for i, v := range values {
		evs[i] = eventValue{scalar: v}
	}
	t.addLeaf(treeio.LeafDescriptor{Name: name, Code: code, Probe: 1}, evs)
	return t
}

// AddConstArray registers a constant-length array leaf (probe > 1, no
// dimension leaf) with one fixed-length row per event.
func (t *Tree) AddConstArray(name string, code leaftype.Code, probe int, rows [][]float64) *Tree {
	if err := t.setEntries(len(rows)); err != nil {
		panic(err)
	}
	evs := make([]eventValue, len(rows))
	for i, row := range rows {
		if len(row) != probe {
			panic(fmt.Sprintf("faketree: const array %q row %d has length %d, want %d", name, i, len(row), probe))
		}
		evs[i] = eventValue{array: append([]float64(nil), row...)}
	}
	t.addLeaf(treeio.LeafDescriptor{Name: name, Code: code, Probe: probe}, evs)
	return t
}

// AddVariableArray registers a variable-length array leaf bound to dimLeaf
// (which must already have been added, typically via AddScalar, with
// integral values matching len(rows[i])).
func (t *Tree) AddVariableArray(name string, code leaftype.Code, dimLeaf string, rows [][]float64) *Tree {
	if err := t.setEntries(len(rows)); err != nil {
		panic(err)
	}
	evs := make([]eventValue, len(rows))
	for i, row := range rows {
		evs[i] = eventValue{array: append([]float64(nil), row...)}
	}
	t.addLeaf(treeio.LeafDescriptor{Name: name, Code: code, DimLeaf: dimLeaf}, evs)
	return t
}

func (t *Tree) addLeaf(desc treeio.LeafDescriptor, values []eventValue) {
	if _, exists := t.leaves[desc.Name]; !exists {
		t.order = append(t.order, desc.Name)
	}
	t.leaves[desc.Name] = &leafRecord{desc: desc, values: values}
	t.active[desc.Name] = true
}

func (t *Tree) Name() string { return t.name }

func (t *Tree) Leaves() []treeio.LeafDescriptor {
	out := make([]treeio.LeafDescriptor, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.leaves[name].desc)
	}
	return out
}

func (t *Tree) Entries() int64 { return t.nEntries }

func (t *Tree) SetBranchStatus(pattern string, active bool) {
	if pattern == "*" {
		for name := range t.leaves {
			t.active[name] = active
		}
		return
	}
	if _, ok := t.leaves[pattern]; ok {
		t.active[pattern] = active
	}
}

func (t *Tree) BindInputAddress(leafName string, slot treeio.Slot) error {
	if _, ok := t.leaves[leafName]; !ok {
		return fmt.Errorf("faketree: no such leaf %q", leafName)
	}
	t.inputBind[leafName] = slot
	return nil
}

func (t *Tree) GetEntry(i int64) error {
	if i < 0 || i >= t.nEntries {
		return fmt.Errorf("faketree: event %d out of range [0,%d)", i, t.nEntries)
	}
	for name, slot := range t.inputBind {
		if !t.active[name] {
			continue
		}
		rec := t.leaves[name]
		ev := rec.values[i]
		code := rec.desc.Code
		if typed, ok := slot.(interface{ Code() leaftype.Code }); ok {
			code = typed.Code()
		}
		if rec.desc.IsScalar() {
			if err := setBoxed(slot, 0, code, ev.scalar); err != nil {
				return err
			}
			continue
		}
		n := len(ev.array)
		if n > slot.Cap() {
			n = slot.Cap()
		}
		for idx := 0; idx < n; idx++ {
			if err := setBoxed(slot, idx, code, ev.array[idx]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Tree) ColumnMax(leafName string) (int64, error) {
	rec, ok := t.leaves[leafName]
	if !ok {
		return 0, fmt.Errorf("faketree: no such leaf %q", leafName)
	}
	if len(rec.values) == 0 {
		return 0, nil
	}
	max := rec.values[0].scalar
	for _, v := range rec.values[1:] {
		if v.scalar > max {
			max = v.scalar
		}
	}
	return int64(max), nil
}

func (t *Tree) NewOutputBranch(name string, slot treeio.Slot, code leaftype.Code, width int, titleHint string) error {
	binding := outputBinding{name: name, slot: slot, code: code, width: width, title: titleHint}
	if idx, exists := t.outIndex[name]; exists {
		t.outBindings[idx] = binding
		return nil
	}
	t.outIndex[name] = len(t.outBindings)
	t.outBindings = append(t.outBindings, binding)

	if _, exists := t.leaves[name]; !exists {
		desc := treeio.LeafDescriptor{Name: name, Code: code, Probe: width}
		t.leaves[name] = &leafRecord{desc: desc}
		t.order = append(t.order, name)
		t.active[name] = true
	}
	return nil
}

func (t *Tree) Fill() error {
	for _, b := range t.outBindings {
		rec := t.leaves[b.name]
		if b.width <= 1 {
			rec.values = append(rec.values, eventValue{scalar: toFloat(b.slot.Get(0))})
			continue
		}
		row := make([]float64, b.width)
		for i := 0; i < b.width; i++ {
			row[i] = toFloat(b.slot.Get(i))
		}
		rec.values = append(rec.values, eventValue{array: row})
	}
	t.nEntries++
	return nil
}

func (t *Tree) FillOne(name string, value float64) error {
	rec, ok := t.leaves[name]
	if !ok {
		return fmt.Errorf("faketree: no such output branch %q", name)
	}
	rec.values = append(rec.values, eventValue{scalar: value})
	return nil
}

func (t *Tree) CopyWithCut(cut string) (treeio.Tree, error) {
	cond, err := compileCut(cut)
	if err != nil {
		return nil, err
	}
	out := NewTree(t.name)
	out.title = t.title

	keep := make([]bool, t.nEntries)
	for i := int64(0); i < t.nEntries; i++ {
		row := make(map[string]float64, len(t.order))
		for _, name := range t.order {
			if !t.active[name] {
				continue
			}
			rec := t.leaves[name]
			if rec.desc.IsScalar() {
				row[name] = rec.values[i].scalar
			}
		}
		keep[i] = cond(row)
	}

	kept := 0
	for _, k := range keep {
		if k {
			kept++
		}
	}

	for _, name := range t.order {
		if !t.active[name] {
			continue
		}
		rec := t.leaves[name]
		filtered := make([]eventValue, 0, kept)
		for i, v := range rec.values {
			if keep[i] {
				filtered = append(filtered, v)
			}
		}
		out.addLeaf(rec.desc, filtered)
	}
	out.nEntries = int64(kept)
	return out, nil
}

func (t *Tree) Clone() (treeio.Tree, error) {
	out := NewTree(t.name)
	out.title = t.title
	for _, name := range t.order {
		if !t.active[name] {
			continue
		}
		rec := t.leaves[name]
		cp := append([]eventValue(nil), rec.values...)
		out.addLeaf(rec.desc, cp)
	}
	out.nEntries = t.nEntries
	return out, nil
}

func (t *Tree) SetTitle(title string)     { t.title = title }
func (t *Tree) SetOutputName(name string) { t.name = name }

// Title returns the tree's current title (test-only accessor).
func (t *Tree) Title() string { return t.title }

// Row returns the boxed values of every active leaf at event i, keyed by
// output leaf name, for assertions in tests.
func (t *Tree) Row(i int64) map[string]any {
	out := make(map[string]any)
	for _, name := range t.order {
		rec := t.leaves[name]
		if i >= int64(len(rec.values)) {
			continue
		}
		ev := rec.values[i]
		if rec.desc.IsScalar() || rec.desc.Probe == 1 {
			out[name] = ev.scalar
		} else {
			out[name] = ev.array
		}
	}
	return out
}

func setBoxed(slot treeio.Slot, i int, code leaftype.Code, v float64) error {
	return slot.Set(i, box(code, v))
}

func box(code leaftype.Code, v float64) any {
	switch code {
	case leaftype.Int8:
		return int8(v)
	case leaftype.Uint8:
		return uint8(v)
	case leaftype.Int16:
		return int16(v)
	case leaftype.Uint16:
		return uint16(v)
	case leaftype.Int32:
		return int32(v)
	case leaftype.Uint32:
		return uint32(v)
	case leaftype.Float32:
		return float32(v)
	case leaftype.Float64:
		return v
	case leaftype.Int64:
		return int64(v)
	case leaftype.Uint64:
		return uint64(v)
	case leaftype.Bool:
		return v != 0
	default:
		return v
	}
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case int8:
		return float64(x)
	case uint8:
		return float64(x)
	case int16:
		return float64(x)
	case uint16:
		return float64(x)
	case int32:
		return float64(x)
	case uint32:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return math.NaN()
	}
}

// compileCut builds a minimal evaluator for the cut grammar exercised by
// this engine's own tests and examples (§8): conjunctions/disjunctions of
// "<leaf> <op> <number>" comparisons. The real numeric-formula evaluator is
// an external collaborator (§1); this is a stand-in sufficient for the
// fake tree-file backend.
func compileCut(cut string) (func(map[string]float64) bool, error) {
	cut = strings.TrimSpace(cut)
	if cut == "" {
		return func(map[string]float64) bool { return true }, nil
	}

	orGroups := strings.Split(cut, "||")
	var orFns []func(map[string]float64) bool
	for _, group := range orGroups {
		andTerms := strings.Split(group, "&&")
		var andFns []func(map[string]float64) bool
		for _, term := range andTerms {
			fn, err := compileComparison(strings.TrimSpace(term))
			if err != nil {
				return nil, err
			}
			andFns = append(andFns, fn)
		}
		orFns = append(orFns, func(row map[string]float64) bool {
			for _, fn := range andFns {
				if !fn(row) {
					return false
				}
			}
			return true
		})
	}
	return func(row map[string]float64) bool {
		for _, fn := range orFns {
			if fn(row) {
				return true
			}
		}
		return false
	}, nil
}

var ops = []string{"==", "!=", "<=", ">=", "<", ">"}

func compileComparison(term string) (func(map[string]float64) bool, error) {
	for _, op := range ops {
		idx := strings.Index(term, op)
		if idx < 0 {
			continue
		}
		leaf := strings.TrimSpace(term[:idx])
		numStr := strings.TrimSpace(term[idx+len(op):])
		num, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			return nil, fmt.Errorf("faketree: invalid cut %q: %w", term, err)
		}
		return func(row map[string]float64) bool {
			v, ok := row[leaf]
			if !ok {
				return false
			}
			switch op {
			case "==":
				return v == num
			case "!=":
				return v != num
			case "<=":
				return v <= num
			case ">=":
				return v >= num
			case "<":
				return v < num
			case ">":
				return v > num
			}
			return false
		}, nil
	}
	return nil, fmt.Errorf("faketree: unsupported cut expression %q", term)
}
