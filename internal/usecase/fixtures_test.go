package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"InvSight/internal/domain/models"
	"InvSight/internal/registry"
	"InvSight/internal/repository"
	"InvSight/internal/services/contract"
	"InvSight/internal/services/forecast"
	"InvSight/internal/services/reconcile"
)

type mapSource map[string]string

func (m mapSource) ReadObject(_ context.Context, name string) ([]byte, error) {
	s, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("object %s not found", name)
	}
	return []byte(s), nil
}

func (m mapSource) Location() string { return "mem://artifacts" }

var artifacts = mapSource{
	"manifest.yaml": `
version: test
artifacts:
  - id: demand-last
    role: demand
    contract: contracts/demand.yaml
    predictor: {kind: last_value, index: 0}
  - id: anomaly-qty
    role: anomaly
    contract: contracts/anomaly.yaml
    predictor: {kind: threshold, index: 0, threshold: 20}
  - id: pricing-linear
    role: pricing
    contract: contracts/pricing.yaml
    predictor: {kind: linear, weights: [0.1, 0.2], intercept: 3}
`,
	"contracts/demand.yaml": `
name: demand
version: v1
subject: product_id
features:
  - {name: quantity, type: numeric, transform: minmax, scale: {kind: minmax, min: 0, max: 50}}
  - {name: day_of_week, type: numeric}
target:
  name: quantity
  scale: {kind: minmax, min: 0, max: 50}
`,
	"contracts/anomaly.yaml": `
name: anomaly
version: v1
features:
  - {name: quantity, type: numeric}
`,
	"contracts/pricing.yaml": `
name: pricing
version: v2
features:
  - {name: quantity, type: numeric}
  - {name: category, type: categorical, transform: label, categories: [food, toys]}
target:
  name: total_price
  scale: {kind: log1p}
`,
}

type recMetrics struct {
	mu          sync.Mutex
	errors      map[string]int
	predictions map[string]int
	fallbacks   int
	snapshots   int
}

func newRecMetrics() *recMetrics {
	return &recMetrics{errors: map[string]int{}, predictions: map[string]int{}}
}

func (m *recMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *recMetrics) RecordLatency(string, float64) {}

func (m *recMetrics) RecordPrediction(role, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions[role+"/"+outcome]++
}

func (m *recMetrics) RecordEncodingFallback(string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks++
}

func (m *recMetrics) RecordSnapshot(int, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots++
}

func (m *recMetrics) count(f func(*recMetrics) int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return f(m)
}

func day(d int) time.Time { return time.Date(2024, 1, d, 12, 0, 0, 0, time.UTC) }

// inventory holds product 1 with ten daily sales of quantity 1..10 and
// product 2 with three sales of quantity 4..6.
func inventory() *repository.MemoryEntityStore {
	var tx []models.Row
	id := 1
	for i := 1; i <= 10; i++ {
		tx = append(tx, models.Row{
			"transaction_id":   models.Num(float64(id)),
			"product_id":       models.Num(1),
			"quantity":         models.Num(float64(i)),
			"total_price":      models.Num(float64(2 * i)),
			"transaction_date": models.Time(day(i)),
		})
		id++
	}
	for i := 1; i <= 3; i++ {
		tx = append(tx, models.Row{
			"transaction_id":   models.Num(float64(id)),
			"product_id":       models.Num(2),
			"quantity":         models.Num(float64(i + 3)),
			"total_price":      models.Num(float64(3 * (i + 3))),
			"transaction_date": models.Time(day(i)),
		})
		id++
	}
	products := []models.Row{
		{"product_id": models.Num(1), "supplier_id": models.Num(10), "warehouse_id": models.Num(100),
			"category": models.Str("food"), "stock_level": models.Num(100), "price_per_unit": models.Num(2)},
		{"product_id": models.Num(2), "supplier_id": models.Num(20), "warehouse_id": models.Num(200),
			"category": models.Str("toys"), "stock_level": models.Num(0), "price_per_unit": models.Num(3)},
	}
	suppliers := []models.Row{
		{"supplier_id": models.Num(10), "reliability_score": models.Num(0.9), "cost_per_unit": models.Num(1)},
		{"supplier_id": models.Num(20), "reliability_score": models.Num(0.5), "cost_per_unit": models.Num(2)},
	}
	warehouses := []models.Row{
		{"warehouse_id": models.Num(100), "capacity": models.Num(1000)},
		{"warehouse_id": models.Num(200), "capacity": models.Num(500)},
	}
	return repository.NewMemoryEntityStore(
		models.NewEntityTable("transactions", "transaction_id", nil, tx),
		models.NewEntityTable("products", "product_id", nil, products),
		models.NewEntityTable("suppliers", "supplier_id", nil, suppliers),
		models.NewEntityTable("warehouses", "warehouse_id", nil, warehouses),
	)
}

type fixture struct {
	store    *repository.MemoryEntityStore
	reg      *registry.Registry
	engine   *reconcile.Engine
	enforcer *contract.Enforcer
	snaps    *SnapshotManager
	metrics  *recMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := registry.Load(context.Background(), artifacts, "manifest.yaml", nil)
	require.NoError(t, err)
	engine, err := reconcile.NewEngine(reconcile.DefaultPlan())
	require.NoError(t, err)

	f := &fixture{
		store:    inventory(),
		reg:      reg,
		engine:   engine,
		enforcer: contract.NewEnforcer(),
		metrics:  newRecMetrics(),
	}
	f.enforcer.SetMetrics(f.metrics)
	f.snaps = NewSnapshotManager(f.store, engine, f.metrics, WithFetchTimeout(time.Second))
	return f
}

func (f *fixture) orchestrator(opts ...OrchestratorOption) *Orchestrator {
	return NewOrchestrator(f.reg, f.snaps, f.engine, f.enforcer,
		forecast.NewEngine(forecast.WithWindowLength(5)), f.metrics, opts...)
}
