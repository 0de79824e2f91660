package models

import (
	"fmt"
	"sort"
)

// Row maps column name to a scalar.
type Row map[string]Value

// Get returns the value for col, or Null when absent.
func (r Row) Get(col string) Value {
	if r == nil {
		return Null
	}
	return r[col]
}

// Clone returns a shallow copy; Values are immutable so this is a deep copy in practice.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ForeignKey declares that Column references Table's primary key.
type ForeignKey struct {
	Column string `json:"column" yaml:"column"`
	Table  string `json:"table" yaml:"table"`
}

// EntityTable is a named collection of rows sharing a schema.
type EntityTable struct {
	Name        string       `json:"name"`
	PrimaryKey  string       `json:"primary_key,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
	Columns     []string     `json:"columns"`
	Rows        []Row        `json:"rows"`
}

// NewEntityTable builds a table and derives Columns from the rows when cols is empty.
func NewEntityTable(name, primaryKey string, cols []string, rows []Row) *EntityTable {
	t := &EntityTable{Name: name, PrimaryKey: primaryKey, Columns: cols, Rows: rows}
	if len(t.Columns) == 0 {
		t.Columns = ColumnsOf(rows)
	}
	return t
}

// HasColumn reports whether the column is declared (or present in any row).
func (t *EntityTable) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	for _, r := range t.Rows {
		if _, ok := r[col]; ok {
			return true
		}
	}
	return false
}

// Len returns the number of rows.
func (t *EntityTable) Len() int { return len(t.Rows) }

// ValidatePrimaryKey checks primary key uniqueness. Null keys are rejected too.
func (t *EntityTable) ValidatePrimaryKey() error {
	if t.PrimaryKey == "" {
		return nil
	}
	seen := make(map[string]int, len(t.Rows))
	for i, r := range t.Rows {
		v := r.Get(t.PrimaryKey)
		if v.IsNull() {
			return fmt.Errorf("table %s: row %d has null primary key %s", t.Name, i, t.PrimaryKey)
		}
		k := v.String()
		if j, ok := seen[k]; ok {
			return fmt.Errorf("table %s: duplicate primary key %s=%s at rows %d and %d", t.Name, t.PrimaryKey, k, j, i)
		}
		seen[k] = i
	}
	return nil
}

// ColumnsOf returns the sorted union of keys across rows.
func ColumnsOf(rows []Row) []string {
	set := make(map[string]struct{})
	for _, r := range rows {
		for k := range r {
			set[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ReconciledFrame is the joined, derived and filled output of reconciliation.
// Each row corresponds to exactly one fact-table row, in fact-table order.
type ReconciledFrame struct {
	Columns []string             `json:"columns"`
	Kinds   map[string]ValueKind `json:"-"`
	Rows    []Row                `json:"rows"`
}

// Len returns the number of rows.
func (f *ReconciledFrame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// HasColumn reports whether the frame carries col.
func (f *ReconciledFrame) HasColumn(col string) bool {
	if f == nil {
		return false
	}
	for _, c := range f.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Select returns a frame holding only rows for which keep returns true.
// Rows are shared, not copied.
func (f *ReconciledFrame) Select(keep func(Row) bool) *ReconciledFrame {
	out := &ReconciledFrame{Columns: f.Columns, Kinds: f.Kinds}
	for _, r := range f.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// FrameFromRow wraps a single row into a frame.
func FrameFromRow(r Row) *ReconciledFrame {
	return &ReconciledFrame{Columns: ColumnsOf([]Row{r}), Rows: []Row{r}}
}
