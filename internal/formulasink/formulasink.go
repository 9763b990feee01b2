// Package formulasink implements the FormulaSink (§4.7): it turns a formula
// expression referencing leaves as "#name" tokens into a new f64 output
// branch, evaluated once per event against the tree's current values.
//
// Evaluating the substituted expression against a row of numbers is the
// actual numeric-formula engine, an external collaborator out of scope for
// this repository (§1) — Sink depends only on the Formula interface below.
package formulasink

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vukanj/rootranger/internal/leaftype"
	"github.com/vukanj/rootranger/internal/registry"
	"github.com/vukanj/rootranger/internal/treeio"
)

var tokenPattern = regexp.MustCompile(`#[A-Za-z_][A-Za-z0-9_]*`)

// Formula evaluates one row of positional values against a pre-compiled
// expression. Positions correspond to the sorted, deduplicated token list
// returned by Tokens.
type Formula interface {
	Eval(values []float64) (float64, error)
}

// Compiler turns a substituted expression (tokens already rewritten to
// "[0]", "[1]", ...) into a Formula.
type Compiler interface {
	Compile(substituted string) (Formula, error)
}

// Sink binds one formula's identifiers to the input tree, creates its
// output branch, and evaluates it once per GetEntry.
type Sink struct {
	name        string
	rawExpr     string
	tokens      []string
	substituted string

	formula Formula

	inputs []leafReader
	values []float64
	out    treeio.Tree
}

type leafReader struct {
	name string
	buf  leafReadBuf
}

// leafReadBuf is the narrow slice of leafbuf.Buffer this package needs: a
// single f64 cell per identifier.
type leafReadBuf interface {
	Get(i int) any
}

// ExtractTokens returns the unique "#identifier" references in expr, sorted
// lexically. Sorting (rather than first-seen order) keeps positional
// argument assignment stable across repeated calls with reordered formulas,
// matching the deterministic ordering used to build the std::set of
// identifiers in the collaborator this package's design is grounded on.
func ExtractTokens(expr string) []string {
	matches := tokenPattern.FindAllString(expr, -1)
	seen := make(map[string]bool, len(matches))
	var tokens []string
	for _, m := range matches {
		name := strings.TrimPrefix(m, "#")
		if seen[name] {
			continue
		}
		seen[name] = true
		tokens = append(tokens, name)
	}
	sort.Strings(tokens)
	return tokens
}

// substitute rewrites every "#token" in expr to its positional index "[k]"
// per tokens' order. Tokens are substituted longest-name-first so that one
// identifier name being a prefix of another (e.g. "#n" and "#n2") cannot
// corrupt an earlier replacement.
func substitute(expr string, tokens []string) string {
	order := append([]string(nil), tokens...)
	sort.Slice(order, func(i, j int) bool { return len(order[i]) > len(order[j]) })

	index := make(map[string]int, len(tokens))
	for i, tok := range tokens {
		index[tok] = i
	}

	out := expr
	for _, tok := range order {
		re := regexp.MustCompile(`#` + regexp.QuoteMeta(tok) + `\b`)
		out = re.ReplaceAllString(out, fmt.Sprintf("[%d]", index[tok]))
	}
	return out
}

// New parses expr, building the sorted token list and the substituted
// expression, but does not yet bind anything.
func New(name, expr string) *Sink {
	tokens := ExtractTokens(expr)
	return &Sink{
		name:        name,
		rawExpr:     expr,
		tokens:      tokens,
		substituted: substitute(expr, tokens),
		values:      make([]float64, len(tokens)),
	}
}

// Tokens returns the formula's sorted, deduplicated identifier list.
func (s *Sink) Tokens() []string { return s.tokens }

// Substituted returns expr with every "#token" rewritten to its positional
// index, ready for a Compiler.
func (s *Sink) Substituted() string { return s.substituted }

// Bind compiles the formula, binds one f64 input buffer per identifier
// against the already-populated tree, and creates the new f64 output
// branch. tree is read from and written to in place: it already carries
// every row from the job that produced it (§4.7, "an already-populated
// output tree").
func (s *Sink) Bind(compiler Compiler, reg *registry.Registry, tree treeio.Tree) error {
	formula, err := compiler.Compile(s.substituted)
	if err != nil {
		return fmt.Errorf("formulasink: compiling %q: %w", s.rawExpr, err)
	}
	s.formula = formula
	s.out = tree

	s.inputs = make([]leafReader, 0, len(s.tokens))
	for _, tok := range s.tokens {
		buf, _, err := reg.Append(leaftype.Float64, 1, false)
		if err != nil {
			return fmt.Errorf("formulasink: allocating buffer for %q: %w", tok, err)
		}
		tree.SetBranchStatus(tok, true)
		if err := tree.BindInputAddress(tok, buf); err != nil {
			return fmt.Errorf("formulasink: binding identifier %q: %w", tok, err)
		}
		s.inputs = append(s.inputs, leafReader{name: tok, buf: buf})
	}

	if err := tree.NewOutputBranch(s.name, noopSlot{}, leaftype.Float64, 1, ""); err != nil {
		return fmt.Errorf("formulasink: creating output branch %q: %w", s.name, err)
	}
	return nil
}

// Eval reads the currently bound input values for event i, evaluates the
// formula, and back-fills the result into this formula's own output
// branch via FillOne — it does not touch any other branch's row count.
// Eval reads event i itself (GetEntry); call it once per event, in event
// order.
func (s *Sink) Eval(i int64) error {
	if err := s.out.GetEntry(i); err != nil {
		return err
	}
	for k, in := range s.inputs {
		v, ok := toFloat(in.buf.Get(0))
		if !ok {
			return fmt.Errorf("formulasink: identifier %q produced a non-numeric value", in.name)
		}
		s.values[k] = v
	}
	result, err := s.formula.Eval(s.values)
	if err != nil {
		return fmt.Errorf("formulasink: evaluating %q: %w", s.rawExpr, err)
	}
	return s.out.FillOne(s.name, result)
}

// noopSlot satisfies treeio.Slot for NewOutputBranch's bookkeeping; the
// formula branch is never filled through Fill()/a bound slot, only through
// FillOne, so this slot is never read or written.
type noopSlot struct{}

func (noopSlot) Cap() int            { return 1 }
func (noopSlot) Get(i int) any       { return float64(0) }
func (noopSlot) Set(i int, v any) error { return nil }

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint32:
		return float64(x), true
	case int16:
		return float64(x), true
	case uint16:
		return float64(x), true
	case int8:
		return float64(x), true
	case uint8:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
