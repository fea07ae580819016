package types

import (
	"fmt"
	"strings"

	"github.com/mitchellh/hashstructure"
)

// Column is one (name, type) pair in a Schema.
type Column struct {
	Name string
	Type Type
}

// Schema is an ordered sequence of uniquely-named columns. Schemas are
// value types: copy freely, compare with Equal.
type Schema struct {
	Columns []Column
}

// New builds a Schema, rejecting duplicate column names.
func New(cols ...Column) (Schema, error) {
	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		if _, ok := seen[c.Name]; ok {
			return Schema{}, fmt.Errorf("duplicate column name %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return Schema{Columns: append([]Column(nil), cols...)}, nil
}

// IndexOf returns the 0-based index of name, or -1 if absent.
func (s Schema) IndexOf(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Column looks up a column by name.
func (s Schema) Column(name string) (Column, bool) {
	i := s.IndexOf(name)
	if i < 0 {
		return Column{}, false
	}
	return s.Columns[i], true
}

// Equal reports structural equality: same columns, in order, same types.
func (s Schema) Equal(o Schema) bool {
	if len(s.Columns) != len(o.Columns) {
		return false
	}
	for i, c := range s.Columns {
		oc := o.Columns[i]
		if c.Name != oc.Name || !c.Type.Equal(oc.Type) {
			return false
		}
	}
	return true
}

// Hash returns a stable structural hash of the schema, computed with
// github.com/mitchellh/hashstructure.
func (s Schema) Hash() (uint64, error) {
	return hashstructure.Hash(s, nil)
}

// Append returns a new Schema with cols appended; Schema values are
// immutable, so this never mutates s.
func (s Schema) Append(cols ...Column) (Schema, error) {
	return New(append(append([]Column(nil), s.Columns...), cols...)...)
}

// String renders the schema's stable textual form, e.g.
// "(date VARCHAR, count BIGINT)", used for serde and logging.
func (s Schema) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, c := range s.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.Name)
		b.WriteByte(' ')
		b.WriteString(c.Type.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Parse parses the textual form produced by String back into a Schema.
// Only scalar kinds are supported by the textual form; LIST/MAP columns
// must be constructed programmatically.
func Parse(s string) (Schema, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return Schema{}, fmt.Errorf("invalid schema text %q", s)
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return New()
	}
	parts := strings.Split(inner, ", ")
	cols := make([]Column, 0, len(parts))
	for _, p := range parts {
		fields := strings.SplitN(p, " ", 2)
		if len(fields) != 2 {
			return Schema{}, fmt.Errorf("invalid column spec %q", p)
		}
		k, ok := kindByName(fields[1])
		if !ok {
			return Schema{}, fmt.Errorf("unknown type %q", fields[1])
		}
		cols = append(cols, Column{Name: fields[0], Type: Scalar(k)})
	}
	return New(cols...)
}

func kindByName(name string) (Kind, bool) {
	for k := Bool; k <= Varchar; k++ {
		if k.String() == name {
			return k, true
		}
	}
	return Invalid, false
}
