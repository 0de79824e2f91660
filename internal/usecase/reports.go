package usecase

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"InvSight/internal/domain/errs"
	domrepo "InvSight/internal/domain/repository"
	svccache "InvSight/internal/service/cache"
	svcmetrics "InvSight/internal/service/metrics"
	"InvSight/internal/services/reconcile"
	pkgcache "InvSight/pkg/cache"
	"InvSight/pkg/util"
)

// SupplierPerformance aggregates one supplier's transactions.
type SupplierPerformance struct {
	SupplierID       string   `json:"supplier_id"`
	Transactions     int      `json:"transactions"`
	TotalQuantity    float64  `json:"total_quantity"`
	MeanReliability  float64  `json:"mean_reliability"`
	MeanDeliveryTime *float64 `json:"mean_delivery_time,omitempty"`
}

// ReplenishmentItem is a product whose stock is below the reorder threshold.
type ReplenishmentItem struct {
	ProductID  string  `json:"product_id"`
	StockLevel float64 `json:"stock_level"`
}

type ReplenishmentReport struct {
	SnapshotVersion string              `json:"snapshot_version"`
	Quantile        float64             `json:"quantile"`
	Threshold       float64             `json:"threshold"`
	Total           int                 `json:"total"`
	Items           []ReplenishmentItem `json:"items"`
}

// WarehouseSummary is the stock and revenue held by one warehouse.
type WarehouseSummary struct {
	WarehouseID  string  `json:"warehouse_id"`
	Products     int     `json:"products"`
	TotalStock   float64 `json:"total_stock"`
	TotalRevenue string  `json:"total_revenue"`
	Capacity     float64 `json:"capacity"`
	Utilization  float64 `json:"utilization"`
}

// Reports computes analytics over the active snapshot. Results are memoized
// per snapshot version.
type Reports struct {
	snaps *SnapshotManager
	ttl   time.Duration

	suppliers     *svccache.TTLCache[[]SupplierPerformance]
	warehouses    *svccache.TTLCache[[]WarehouseSummary]
	replenishment *svccache.TTLCache[*ReplenishmentReport]
}

func NewReports(snaps *SnapshotManager, ttl time.Duration) *Reports {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	r := &Reports{
		snaps:         snaps,
		ttl:           ttl,
		suppliers:     svccache.NewTTLCache[[]SupplierPerformance](),
		warehouses:    svccache.NewTTLCache[[]WarehouseSummary](),
		replenishment: svccache.NewTTLCache[*ReplenishmentReport](),
	}
	snaps.OnSwap(func(*Snapshot) { r.Purge() })
	return r
}

// Purge drops every memoized report.
func (r *Reports) Purge() {
	r.suppliers.Purge()
	r.warehouses.Purge()
	r.replenishment.Purge()
}

func (r *Reports) SupplierPerformance(ctx context.Context) (out []SupplierPerformance, err error) {
	const name = "suppliers"
	start := time.Now()
	defer func() { svcmetrics.ObserveReport(name, start, err) }()

	snap, err := r.snaps.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	if v, ok := r.suppliers.Get(snap.Version); ok {
		svcmetrics.ReportCacheHits.WithLabelValues(name).Inc()
		return v, nil
	}
	if !snap.Frame.HasColumn("supplier_id") {
		return nil, errs.SchemaMismatch("report "+name, "column supplier_id is absent")
	}

	type acc struct {
		n        int
		qty      float64
		rel      []float64
		delivery []float64
	}
	groups := map[string]*acc{}
	hasDelivery := snap.Frame.HasColumn("delivery_time")
	for _, row := range snap.Frame.Rows {
		id, ok := reconcile.CanonicalKey(row.Get("supplier_id"))
		if !ok {
			continue
		}
		a := groups[id]
		if a == nil {
			a = &acc{}
			groups[id] = a
		}
		a.n++
		if q, ok := row.Get("quantity").Float(); ok {
			a.qty += q
		}
		if v, ok := row.Get("reliability_score").Float(); ok {
			a.rel = append(a.rel, v)
		}
		if hasDelivery {
			if v, ok := row.Get("delivery_time").Float(); ok {
				a.delivery = append(a.delivery, v)
			}
		}
	}

	out = make([]SupplierPerformance, 0, len(groups))
	for id, a := range groups {
		sp := SupplierPerformance{SupplierID: id, Transactions: a.n, TotalQuantity: a.qty, MeanReliability: finite(util.Mean(a.rel))}
		if len(a.delivery) > 0 {
			m := util.Mean(a.delivery)
			sp.MeanDeliveryTime = &m
		}
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return keyLess(out[i].SupplierID, out[j].SupplierID) })
	r.suppliers.Set(snap.Version, out, r.ttl)
	return out, nil
}

// Replenishment lists products with stock_level below the q-quantile of prev_quantity.
func (r *Reports) Replenishment(ctx context.Context, q float64, limit int) (out *ReplenishmentReport, err error) {
	const name = "replenishment"
	start := time.Now()
	defer func() { svcmetrics.ObserveReport(name, start, err) }()

	if q <= 0 || q >= 1 {
		return nil, errs.InvalidRequest("report "+name, "quantile %v outside (0, 1)", q)
	}
	snap, err := r.snaps.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	key := pkgcache.GenerateKeyWithParams(name, snap.Version, q)
	if v, ok := r.replenishment.Get(key); ok {
		svcmetrics.ReportCacheHits.WithLabelValues(name).Inc()
		return truncate(v, limit), nil
	}

	prev := make([]float64, 0, snap.Frame.Len())
	for _, row := range snap.Frame.Rows {
		if v, ok := row.Get("prev_quantity").Float(); ok {
			prev = append(prev, v)
		}
	}
	threshold := util.Quantile(prev, q)
	if math.IsNaN(threshold) {
		return nil, errs.InsufficientHistory("report "+name, 0, 1)
	}

	products, ok := snap.Tables[domrepo.CollectionProducts]
	if !ok {
		return nil, errs.SchemaMismatch("report "+name, "collection %s is absent", domrepo.CollectionProducts)
	}
	rep := &ReplenishmentReport{SnapshotVersion: snap.Version, Quantile: q, Threshold: threshold}
	for _, row := range products.Rows {
		id, ok := reconcile.CanonicalKey(row.Get("product_id"))
		if !ok {
			continue
		}
		stock, _ := row.Get("stock_level").Float()
		if math.IsNaN(stock) {
			stock = 0
		}
		if stock < threshold {
			rep.Items = append(rep.Items, ReplenishmentItem{ProductID: id, StockLevel: stock})
		}
	}
	sort.SliceStable(rep.Items, func(i, j int) bool {
		if rep.Items[i].StockLevel != rep.Items[j].StockLevel {
			return rep.Items[i].StockLevel < rep.Items[j].StockLevel
		}
		return keyLess(rep.Items[i].ProductID, rep.Items[j].ProductID)
	})
	rep.Total = len(rep.Items)
	r.replenishment.Set(key, rep, r.ttl)
	return truncate(rep, limit), nil
}

// Warehouses sums product stock and transaction revenue per warehouse.
func (r *Reports) Warehouses(ctx context.Context) (out []WarehouseSummary, err error) {
	const name = "warehouses"
	start := time.Now()
	defer func() { svcmetrics.ObserveReport(name, start, err) }()

	snap, err := r.snaps.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	if v, ok := r.warehouses.Get(snap.Version); ok {
		svcmetrics.ReportCacheHits.WithLabelValues(name).Inc()
		return v, nil
	}

	type acc struct {
		products int
		stock    float64
		revenue  decimal.Decimal
		capacity float64
	}
	groups := map[string]*acc{}
	get := func(id string) *acc {
		a := groups[id]
		if a == nil {
			a = &acc{revenue: decimal.Zero}
			groups[id] = a
		}
		return a
	}

	if wh, ok := snap.Tables[domrepo.CollectionWarehouses]; ok {
		for _, row := range wh.Rows {
			if id, ok := reconcile.CanonicalKey(row.Get("warehouse_id")); ok {
				get(id).capacity, _ = row.Get("capacity").Float()
			}
		}
	}
	if p, ok := snap.Tables[domrepo.CollectionProducts]; ok {
		for _, row := range p.Rows {
			if id, ok := reconcile.CanonicalKey(row.Get("warehouse_id")); ok {
				a := get(id)
				a.products++
				if v, ok := row.Get("stock_level").Float(); ok {
					a.stock += v
				}
			}
		}
	}
	for _, row := range snap.Frame.Rows {
		id, ok := reconcile.CanonicalKey(row.Get("warehouse_id"))
		if !ok {
			continue
		}
		if v, ok := row.Get("total_revenue").Float(); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			a := get(id)
			a.revenue = a.revenue.Add(decimal.NewFromFloat(v))
		}
	}

	out = make([]WarehouseSummary, 0, len(groups))
	for id, a := range groups {
		ws := WarehouseSummary{
			WarehouseID:  id,
			Products:     a.products,
			TotalStock:   a.stock,
			TotalRevenue: a.revenue.Round(2).StringFixed(2),
			Capacity:     finite(a.capacity),
		}
		if ws.Capacity > 0 {
			ws.Utilization = a.stock / ws.Capacity
		}
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return keyLess(out[i].WarehouseID, out[j].WarehouseID) })
	r.warehouses.Set(snap.Version, out, r.ttl)
	return out, nil
}

func truncate(rep *ReplenishmentReport, limit int) *ReplenishmentReport {
	if limit <= 0 || len(rep.Items) <= limit {
		return rep
	}
	cp := *rep
	cp.Items = rep.Items[:limit]
	return &cp
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

// keyLess orders canonical keys numerically when both parse, else lexically.
func keyLess(a, b string) bool {
	fa, erra := strconv.ParseFloat(a, 64)
	fb, errb := strconv.ParseFloat(b, 64)
	if erra == nil && errb == nil {
		return fa < fb
	}
	return a < b
}
