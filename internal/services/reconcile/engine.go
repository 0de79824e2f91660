package reconcile

import (
	"time"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	applogger "InvSight/pkg/logger"
)

// Engine joins entity tables into one frame following a Plan, derives
// features and fills missing values. It never mutates its inputs.
type Engine struct {
	plan Plan
	l    *applogger.Logger
}

// NewEngine validates the plan and builds an engine.
func NewEngine(plan Plan) (*Engine, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &Engine{plan: plan.withDefaults()}, nil
}

func (e *Engine) SetLogger(l *applogger.Logger) { e.l = l }

// Plan returns the effective plan.
func (e *Engine) Plan() Plan { return e.plan }

// Reconcile builds the reconciled frame. Row count and order follow the fact table.
func (e *Engine) Reconcile(tables map[string]*models.EntityTable) (*models.ReconciledFrame, error) {
	const op = "reconcile"
	start := time.Now()

	fact, ok := tables[e.plan.Fact]
	if !ok || fact == nil {
		return nil, errs.SchemaMismatch(op, "fact table %s is absent", e.plan.Fact)
	}

	cols := newColumnSet(fact.Columns)
	for _, c := range models.ColumnsOf(fact.Rows) {
		cols.add(c)
	}
	rows := make([]models.Row, len(fact.Rows))
	for i, r := range fact.Rows {
		rows[i] = r.Clone()
	}

	for _, step := range e.plan.Steps {
		if err := e.join(op, rows, cols, tables, step); err != nil {
			return nil, err
		}
	}

	d := deriver{plan: e.plan, rows: rows, cols: cols}
	d.run()

	kinds := fill(rows, cols.list, e.plan.Sentinel)

	if e.l != nil {
		e.l.Debug("reconciled frame",
			applogger.String("fact", e.plan.Fact),
			applogger.Int("rows", len(rows)),
			applogger.Int("columns", len(cols.list)),
			applogger.Duration("duration_ms", time.Since(start)))
	}

	return &models.ReconciledFrame{Columns: cols.list, Kinds: kinds, Rows: rows}, nil
}

// ReconcileRow reconciles a single request row against the dimension tables of the plan.
// The row stands in for the fact table; derivations that need history are left null then filled.
func (e *Engine) ReconcileRow(row models.Row, tables map[string]*models.EntityTable) (models.Row, error) {
	return e.ReconcileObservation(row, nil, tables)
}

// ReconcileObservation reconciles row as the newest fact row after history,
// the earlier fact rows of the same subject. Lags and rolling aggregates of
// row are then the values a snapshot build computes for the same data. A row
// without a usable timestamp is placed at the newest history timestamp.
func (e *Engine) ReconcileObservation(row models.Row, history []models.Row, tables map[string]*models.EntityTable) (models.Row, error) {
	facts := make([]models.Row, 0, len(history)+1)
	facts = append(facts, history...)

	row = row.Clone()
	if ts := e.plan.Timestamp; ts != "" && len(history) > 0 {
		if _, ok := ParseTimestamp(row.Get(ts)); !ok {
			if last, ok := newest(history, ts); ok {
				row[ts] = models.Time(last)
			}
		}
	}
	facts = append(facts, row)

	scoped := make(map[string]*models.EntityTable, len(tables)+1)
	for k, v := range tables {
		scoped[k] = v
	}
	scoped[e.plan.Fact] = models.NewEntityTable(e.plan.Fact, "", nil, facts)
	frame, err := e.Reconcile(scoped)
	if err != nil {
		return nil, err
	}
	return frame.Rows[len(facts)-1], nil
}

func newest(rows []models.Row, ts string) (time.Time, bool) {
	var last time.Time
	found := false
	for _, r := range rows {
		if t, ok := ParseTimestamp(r.Get(ts)); ok && (!found || t.After(last)) {
			last, found = t, true
		}
	}
	return last, found
}

func (e *Engine) join(op string, rows []models.Row, cols *columnSet, tables map[string]*models.EntityTable, step JoinStep) error {
	right, ok := tables[step.Table]
	if !ok || right == nil {
		return errs.SchemaMismatch(op, "table %s is absent", step.Table)
	}
	if !cols.has(step.LeftKey) {
		return errs.SchemaMismatch(op, "join key %s is absent from the left side before joining %s", step.LeftKey, step.Table)
	}
	if !right.HasColumn(step.RightKey) {
		return errs.SchemaMismatch(op, "join key %s is absent from table %s", step.RightKey, step.Table)
	}

	index := make(map[string]int, len(right.Rows))
	for i, r := range right.Rows {
		k, ok := CanonicalKey(r.Get(step.RightKey))
		if !ok {
			continue
		}
		if j, dup := index[k]; dup {
			return errs.SchemaMismatch(op, "table %s has duplicate key %s=%s at rows %d and %d", step.Table, step.RightKey, k, j, i)
		}
		index[k] = i
	}

	rightCols := right.Columns
	if len(rightCols) == 0 {
		rightCols = models.ColumnsOf(right.Rows)
	}
	for _, c := range rightCols {
		cols.add(c)
	}

	matched := 0
	for _, row := range rows {
		lv := CoerceKey(row.Get(step.LeftKey))
		row[step.LeftKey] = lv

		var src models.Row
		if k, ok := CanonicalKey(lv); ok {
			if j, found := index[k]; found {
				src = right.Rows[j]
				matched++
			}
		}
		for _, c := range rightCols {
			rv := models.Null
			if src != nil {
				rv = src.Get(c)
				if c == step.RightKey {
					rv = CoerceKey(rv)
				}
			}
			// the accumulated value is more specific and wins; the joined table only fills gaps
			if existing, has := row[c]; has && !existing.IsNull() {
				continue
			}
			row[c] = rv
		}
	}

	if e.l != nil && matched < len(rows) {
		e.l.Debug("left join left rows unmatched",
			applogger.String("table", step.Table),
			applogger.String("key", step.LeftKey),
			applogger.Int("unmatched", len(rows)-matched))
	}
	return nil
}

type columnSet struct {
	list []string
	set  map[string]struct{}
}

func newColumnSet(initial []string) *columnSet {
	c := &columnSet{set: make(map[string]struct{}, len(initial))}
	for _, col := range initial {
		c.add(col)
	}
	return c
}

func (c *columnSet) add(col string) {
	if _, ok := c.set[col]; ok {
		return
	}
	c.set[col] = struct{}{}
	c.list = append(c.list, col)
}

func (c *columnSet) has(col string) bool {
	_, ok := c.set[col]
	return ok
}
