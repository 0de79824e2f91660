package reconcile

import (
	"fmt"
)

// JoinStep left-joins Table onto the accumulated frame on LeftKey = RightKey.
type JoinStep struct {
	Table    string
	LeftKey  string
	RightKey string
}

// RollingSpec declares trailing aggregates of Column over fixed row windows per subject.
type RollingSpec struct {
	Column  string
	Windows []int
	Funcs   []string // mean, sum
}

// LagSpec declares Column shifted by Periods rows within a subject.
type LagSpec struct {
	Name    string
	Column  string
	Periods int
}

// RatioSpec declares Name = Numerator / (Denominator + Offset + epsilon).
type RatioSpec struct {
	Name        string
	Numerator   string
	Denominator string
	Offset      float64
}

// ProductSpec declares Name = product of Factors.
type ProductSpec struct {
	Name    string
	Factors []string
}

// Plan is the declared join order and derivation set.
type Plan struct {
	Fact      string
	Steps     []JoinStep
	Timestamp string
	Subject   string
	Rolling   []RollingSpec
	Lags      []LagSpec
	Products  []ProductSpec
	Ratios    []RatioSpec
	Epsilon   float64
	Sentinel  string
}

const (
	DefaultEpsilon  = 1e-6
	DefaultSentinel = "unknown"
)

// Calendar columns derived from the timestamp column.
const (
	ColYear      = "year"
	ColMonth     = "month"
	ColDay       = "day"
	ColDayOfWeek = "day_of_week"
	ColIsWeekend = "is_weekend"
)

// DefaultPlan is transactions <- products <- suppliers <- warehouses with the inventory feature set.
func DefaultPlan() Plan {
	return Plan{
		Fact: "transactions",
		Steps: []JoinStep{
			{Table: "products", LeftKey: "product_id", RightKey: "product_id"},
			{Table: "suppliers", LeftKey: "supplier_id", RightKey: "supplier_id"},
			{Table: "warehouses", LeftKey: "warehouse_id", RightKey: "warehouse_id"},
		},
		Timestamp: "transaction_date",
		Subject:   "product_id",
		Rolling: []RollingSpec{
			{Column: "quantity", Windows: []int{7, 30}, Funcs: []string{"mean", "sum"}},
		},
		Lags: []LagSpec{
			{Name: "prev_quantity", Column: "quantity", Periods: 1},
		},
		Products: []ProductSpec{
			{Name: "cost_reliability", Factors: []string{"cost_per_unit", "reliability_score"}},
			{Name: "total_revenue", Factors: []string{"price_per_unit", "quantity"}},
			{Name: "price_x_prev_quantity", Factors: []string{"price_per_unit", "prev_quantity"}},
			{Name: "price_x_day_of_week", Factors: []string{"price_per_unit", ColDayOfWeek}},
			{Name: "price_x_is_weekend", Factors: []string{"price_per_unit", ColIsWeekend}},
		},
		Ratios: []RatioSpec{
			{Name: "price_stock_ratio", Numerator: "price_per_unit", Denominator: "stock_level", Offset: 1},
			{Name: "warehouse_utilization", Numerator: "quantity", Denominator: "capacity", Offset: 1},
		},
		Epsilon:  DefaultEpsilon,
		Sentinel: DefaultSentinel,
	}
}

// Collections returns the fact table followed by joined tables, in join order.
func (p Plan) Collections() []string {
	out := make([]string, 0, len(p.Steps)+1)
	out = append(out, p.Fact)
	for _, s := range p.Steps {
		out = append(out, s.Table)
	}
	return out
}

// Validate checks the plan is internally consistent.
func (p Plan) Validate() error {
	if p.Fact == "" {
		return fmt.Errorf("plan: fact table is required")
	}
	seen := map[string]bool{p.Fact: true}
	for i, s := range p.Steps {
		if s.Table == "" || s.LeftKey == "" || s.RightKey == "" {
			return fmt.Errorf("plan: step %d needs table, left_key and right_key", i)
		}
		if seen[s.Table] {
			return fmt.Errorf("plan: table %s joined twice", s.Table)
		}
		seen[s.Table] = true
	}
	for _, r := range p.Rolling {
		if r.Column == "" || len(r.Windows) == 0 {
			return fmt.Errorf("plan: rolling spec needs column and windows")
		}
		for _, w := range r.Windows {
			if w < 1 {
				return fmt.Errorf("plan: rolling window %d for %s must be >= 1", w, r.Column)
			}
		}
		for _, fn := range r.Funcs {
			if fn != "mean" && fn != "sum" {
				return fmt.Errorf("plan: rolling func %q not supported", fn)
			}
		}
	}
	for _, l := range p.Lags {
		if l.Column == "" || l.Periods < 1 {
			return fmt.Errorf("plan: lag spec needs column and periods >= 1")
		}
	}
	for _, r := range p.Ratios {
		if r.Name == "" || r.Numerator == "" || r.Denominator == "" {
			return fmt.Errorf("plan: ratio spec needs name, numerator and denominator")
		}
	}
	for _, pr := range p.Products {
		if pr.Name == "" || len(pr.Factors) == 0 {
			return fmt.Errorf("plan: product spec needs name and factors")
		}
	}
	if p.Epsilon < 0 {
		return fmt.Errorf("plan: epsilon must be >= 0")
	}
	return nil
}

func (p Plan) withDefaults() Plan {
	if p.Epsilon == 0 {
		p.Epsilon = DefaultEpsilon
	}
	if p.Sentinel == "" {
		p.Sentinel = DefaultSentinel
	}
	for i := range p.Rolling {
		if len(p.Rolling[i].Funcs) == 0 {
			p.Rolling[i].Funcs = []string{"mean"}
		}
	}
	for i := range p.Lags {
		if p.Lags[i].Name == "" {
			p.Lags[i].Name = "prev_" + p.Lags[i].Column
		}
	}
	return p
}

// RollingName is the derived column name for a rolling aggregate.
func RollingName(col string, window int, fn string) string {
	return fmt.Sprintf("%s_roll%d_%s", col, window, fn)
}
