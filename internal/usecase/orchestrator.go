package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	domrepo "InvSight/internal/domain/repository"
	"InvSight/internal/registry"
	svccache "InvSight/internal/service/cache"
	"InvSight/internal/services/anomaly"
	"InvSight/internal/services/contract"
	"InvSight/internal/services/forecast"
	"InvSight/internal/services/pricing"
	"InvSight/internal/services/reconcile"
	applogger "InvSight/pkg/logger"
	"InvSight/pkg/util"
)

// DefaultHorizon is used when a demand request does not set one.
const DefaultHorizon = 7

// ResultSink receives every successful result.
type ResultSink interface {
	Process(ctx context.Context, r *models.PredictionResult) error
}

// Orchestrator routes a request through the contract of the artifact serving
// its role. It keeps no per-request state; the registry is read-only.
type Orchestrator struct {
	reg        *registry.Registry
	snaps      *SnapshotManager
	engine     *reconcile.Engine
	enforcer   *contract.Enforcer
	forecaster *forecast.Engine
	scorer     *anomaly.Scorer
	pricer     *pricing.Optimizer
	windows    domrepo.WindowCache
	sink       ResultSink
	metrics    domrepo.Metrics
	now        func() time.Time
	l          *applogger.Logger
}

type OrchestratorOption func(*Orchestrator)

// WithWindowCache keeps demand windows between calls.
func WithWindowCache(wc domrepo.WindowCache) OrchestratorOption {
	return func(o *Orchestrator) { o.windows = wc }
}

// WithResultSink forwards results downstream after they are computed.
func WithResultSink(s ResultSink) OrchestratorOption {
	return func(o *Orchestrator) { o.sink = s }
}

func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(
	reg *registry.Registry,
	snaps *SnapshotManager,
	engine *reconcile.Engine,
	enforcer *contract.Enforcer,
	forecaster *forecast.Engine,
	metrics domrepo.Metrics,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		reg:        reg,
		snaps:      snaps,
		engine:     engine,
		enforcer:   enforcer,
		forecaster: forecaster,
		scorer:     anomaly.NewScorer(),
		pricer:     pricing.NewOptimizer(),
		metrics:    metrics,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) SetLogger(l *applogger.Logger) { o.l = l }

// Registry exposes the read-only artifact registry.
func (o *Orchestrator) Registry() *registry.Registry { return o.reg }

// Predict serves one request. Failures carry a typed kind from errs.
func (o *Orchestrator) Predict(ctx context.Context, req models.PredictionRequest) (*models.PredictionResult, error) {
	start := o.now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	res, err := o.predict(ctx, req)

	outcome := "ok"
	if err != nil {
		outcome = string(errs.KindOf(err))
		o.metrics.RecordError(outcome)
		o.logFailure(req, err)
	}
	o.metrics.RecordPrediction(string(req.Role), outcome)
	o.metrics.RecordLatency("predict_"+string(req.Role), o.now().Sub(start).Seconds())
	if err != nil {
		return nil, err
	}

	if o.sink != nil {
		if serr := o.sink.Process(ctx, res); serr != nil && o.l != nil {
			o.l.Warn("result delivery deferred",
				applogger.String("request_id", res.RequestID),
				applogger.Error(serr))
		}
	}
	return res, nil
}

func (o *Orchestrator) predict(ctx context.Context, req models.PredictionRequest) (*models.PredictionResult, error) {
	const op = "predict"
	if !req.Role.Valid() {
		return nil, errs.InvalidRequest(op, "unknown role %q", req.Role)
	}
	art, err := o.reg.ForRole(req.Role)
	if err != nil {
		return nil, err
	}
	c := art.Contract()

	res := &models.PredictionResult{
		RequestID:       req.RequestID,
		Role:            req.Role,
		Subject:         strings.TrimSpace(req.Subject),
		ArtifactID:      art.ID(),
		ContractVersion: c.Version(),
		CreatedAt:       o.now().UTC(),
	}

	switch req.Role {
	case models.RoleDemand:
		err = o.demand(ctx, art, req, res)
	case models.RoleAnomaly:
		var vec models.AlignedVector
		if vec, err = o.alignSingle(ctx, art, req, res); err != nil {
			break
		}
		model, merr := art.Classifier()
		if merr != nil {
			return nil, merr
		}
		var out models.AnomalyOutcome
		if out, err = o.scorer.Score(ctx, vec, model); err == nil {
			res.Anomaly = &out
		}
	case models.RolePricing:
		var vec models.AlignedVector
		if vec, err = o.alignSingle(ctx, art, req, res); err != nil {
			break
		}
		model, merr := art.Regressor()
		if merr != nil {
			return nil, merr
		}
		var out models.PricingOutcome
		if out, err = o.pricer.OptimizePrice(ctx, vec, model, c); err == nil {
			res.Pricing = &out
		}
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// alignSingle enriches the request row against the snapshot dimensions when it
// carries the first join key, then aligns it against the artifact contract.
func (o *Orchestrator) alignSingle(ctx context.Context, art *registry.Artifact, req models.PredictionRequest, res *models.PredictionResult) (models.AlignedVector, error) {
	c := art.Contract()
	row := o.requestRow(req, c)

	row, version, err := o.enrich(ctx, row, nil, "")
	if err != nil {
		return models.AlignedVector{}, err
	}
	res.SnapshotVersion = version

	vec, err := o.enforcer.AlignRow(row, c)
	if err != nil {
		return models.AlignedVector{}, err
	}
	if err := art.Accepts(vec); err != nil {
		return models.AlignedVector{}, err
	}
	res.Fallbacks = vec.Fallbacks
	if res.Subject == "" {
		res.Subject = vec.Subject
	}
	return vec, nil
}

func (o *Orchestrator) requestRow(req models.PredictionRequest, c *contract.Contract) models.Row {
	row := req.Features.Clone()
	if subj := c.Subject(); subj != "" && row.Get(subj).IsNull() && strings.TrimSpace(req.Subject) != "" {
		row[subj] = reconcile.CoerceKey(models.Str(req.Subject))
	}
	return row
}

// enrich joins row onto the snapshot dimensions. Rows without the first join
// key are taken as already joined and returned unchanged.
// With a subject the row is reconciled after that subject's fact history so
// lags and rolling aggregates match the frame the models were trained on.
func (o *Orchestrator) enrich(ctx context.Context, row models.Row, snap *Snapshot, subject string) (models.Row, string, error) {
	steps := o.engine.Plan().Steps
	if len(steps) == 0 || row.Get(steps[0].LeftKey).IsNull() {
		return row, "", nil
	}
	if snap == nil {
		var err error
		if snap, err = o.snaps.Ensure(ctx); err != nil {
			return nil, "", err
		}
	}
	var (
		out models.Row
		err error
	)
	if subject != "" {
		out, err = o.engine.ReconcileObservation(row, snap.SubjectFacts(subject), snap.Dimensions())
	} else {
		out, err = o.engine.ReconcileRow(row, snap.Dimensions())
	}
	if err != nil {
		return nil, "", err
	}
	return out, snap.Version, nil
}

func (o *Orchestrator) demand(ctx context.Context, art *registry.Artifact, req models.PredictionRequest, res *models.PredictionResult) error {
	const op = "predict demand"
	c := art.Contract()

	subject := res.Subject
	if subject == "" && c.Subject() != "" {
		subject, _ = reconcile.CanonicalKey(req.Features.Get(c.Subject()))
	}
	if subject == "" {
		return errs.ContractViolation(op, "demand forecast requires subject %s", c.Subject())
	}
	if k, ok := reconcile.CanonicalKey(models.Str(subject)); ok {
		subject = k
	}
	res.Subject = subject

	model, err := art.StepPredictor()
	if err != nil {
		return err
	}
	snap, err := o.snaps.Ensure(ctx)
	if err != nil {
		return err
	}
	res.SnapshotVersion = snap.Version

	w, fallbacks, err := o.window(ctx, snap, subject, req, c)
	if err != nil {
		return err
	}
	res.Fallbacks = fallbacks

	horizon := req.Horizon
	if horizon == 0 {
		horizon = DefaultHorizon
	}
	values, err := o.forecaster.Forecast(ctx, w, model, c, horizon)
	if err != nil {
		return err
	}
	res.Demand = &models.DemandForecast{Values: values}
	if last := w.LastObserved(); !last.IsZero() {
		res.Demand.Dates = util.NextDays(last, horizon)
	}
	return nil
}

// window assembles the subject's window, through the cache when one is set.
// A supplied feature row is pushed as the newest observation and, with a
// cache, persists for later calls against the same snapshot.
func (o *Orchestrator) window(ctx context.Context, snap *Snapshot, subject string, req models.PredictionRequest, c *contract.Contract) (*models.WindowState, []models.EncodingFallback, error) {
	length := o.forecaster.WindowLength()
	if o.windows == nil {
		w, fb, err := o.buildWindow(snap, subject, c, length)
		if err != nil {
			return nil, nil, err
		}
		if len(req.Features) > 0 {
			more, err := o.observe(ctx, w, snap, req, c)
			if err != nil {
				return nil, nil, err
			}
			fb = append(fb, more...)
		}
		return w, fb, nil
	}

	key := svccache.WindowKey(c.Version(), snap.Version, subject)
	unlock, err := o.windows.Lock(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	w, hit, err := o.windows.Load(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if hit && (w.Cap() != length || (w.Width() != 0 && w.Width() != c.Len())) {
		hit = false
	}
	var fb []models.EncodingFallback
	if !hit {
		if w, fb, err = o.buildWindow(snap, subject, c, length); err != nil {
			return nil, nil, err
		}
	}
	if len(req.Features) > 0 {
		more, err := o.observe(ctx, w, snap, req, c)
		if err != nil {
			return nil, nil, err
		}
		fb = append(fb, more...)
	}
	if !hit || len(req.Features) > 0 {
		if err := o.windows.Store(ctx, key, w); err != nil {
			return nil, nil, err
		}
	}
	return w, fb, nil
}

// buildWindow aligns the subject's most recent rows, oldest first.
func (o *Orchestrator) buildWindow(snap *Snapshot, subject string, c *contract.Contract, length int) (*models.WindowState, []models.EncodingFallback, error) {
	rows := snap.SubjectRows(subject)
	if len(rows) > length {
		rows = rows[len(rows)-length:]
	}
	w := models.NewWindowState(subject, length)
	var fb []models.EncodingFallback
	for _, r := range rows {
		vec, err := o.enforcer.AlignRow(r, c)
		if err != nil {
			return nil, nil, err
		}
		if err := w.Push(vec.Values); err != nil {
			return nil, nil, errs.Wrap(errs.KindFeatureContractViolation, "window", err)
		}
		fb = append(fb, vec.Fallbacks...)
	}
	if n := len(rows); n > 0 {
		if t, ok := reconcile.ParseTimestamp(rows[n-1].Get(o.engine.Plan().Timestamp)); ok {
			w.SetLastObserved(t)
		}
	}
	return w, fb, nil
}

func (o *Orchestrator) observe(ctx context.Context, w *models.WindowState, snap *Snapshot, req models.PredictionRequest, c *contract.Contract) ([]models.EncodingFallback, error) {
	row := o.requestRow(req, c)
	if subj := o.engine.Plan().Subject; subj != "" && row.Get(subj).IsNull() {
		row[subj] = reconcile.CoerceKey(models.Str(w.Subject()))
	}
	row, _, err := o.enrich(ctx, row, snap, w.Subject())
	if err != nil {
		return nil, err
	}
	vec, err := o.enforcer.AlignRow(row, c)
	if err != nil {
		return nil, err
	}
	if err := w.Push(vec.Values); err != nil {
		return nil, errs.Wrap(errs.KindFeatureContractViolation, "observe", fmt.Errorf("subject %s: %w", w.Subject(), err))
	}
	if t, ok := reconcile.ParseTimestamp(row.Get(o.engine.Plan().Timestamp)); ok && t.After(w.LastObserved()) {
		w.SetLastObserved(t)
	}
	return vec.Fallbacks, nil
}

func (o *Orchestrator) logFailure(req models.PredictionRequest, err error) {
	if o.l == nil {
		return
	}
	kind := errs.KindOf(err)
	fields := []applogger.Field{
		applogger.String("request_id", req.RequestID),
		applogger.String("role", string(req.Role)),
		applogger.String("subject", req.Subject),
		applogger.String("kind", string(kind)),
		applogger.Error(err),
	}
	if errs.Status(kind) < 500 {
		o.l.Warn("prediction rejected", fields...)
		return
	}
	o.l.Error("prediction failed", fields...)
}
