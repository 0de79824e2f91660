package usecase

import (
	"context"
	"math"
	"time"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	domrepo "InvSight/internal/domain/repository"
	"InvSight/internal/registry"
	"InvSight/internal/services/anomaly"
	"InvSight/internal/services/contract"
	applogger "InvSight/pkg/logger"
)

// Label and target columns written next to the aligned features.
const (
	ColSubject         = "subject"
	ColSnapshotVersion = "snapshot_version"
	ColLabel           = "is_fraud"
	ColTarget          = "target"
)

// Target columns used when a contract names none.
const (
	defaultPricingTarget = "total_price"
	defaultDemandTarget  = "quantity"
)

// ExportResult describes one written training dataset.
type ExportResult struct {
	Role            models.Role `json:"role"`
	Collection      string      `json:"collection"`
	Rows            int         `json:"rows"`
	SnapshotVersion string      `json:"snapshot_version"`
	ArtifactID      string      `json:"artifact_id"`
	ContractVersion string      `json:"contract_version"`
	Threshold       *float64    `json:"threshold,omitempty"`
}

// TrainingExport writes training datasets through the same reconcile and
// align path used for serving.
type TrainingExport struct {
	store    domrepo.EntityStore
	snaps    *SnapshotManager
	enforcer *contract.Enforcer
	reg      *registry.Registry
	l        *applogger.Logger
}

func NewTrainingExport(store domrepo.EntityStore, snaps *SnapshotManager, enforcer *contract.Enforcer, reg *registry.Registry) *TrainingExport {
	return &TrainingExport{store: store, snaps: snaps, enforcer: enforcer, reg: reg}
}

func (e *TrainingExport) SetLogger(l *applogger.Logger) { e.l = l }

// Export writes the dataset for role into training_<role>.
func (e *TrainingExport) Export(ctx context.Context, role models.Role) (*ExportResult, error) {
	const op = "export"
	if !role.Valid() {
		return nil, errs.InvalidRequest(op, "unknown role %q", role)
	}
	start := time.Now()
	art, err := e.reg.ForRole(role)
	if err != nil {
		return nil, err
	}
	snap, err := e.snaps.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	c := art.Contract()

	vecs, err := e.enforcer.Align(snap.Frame, c)
	if err != nil {
		return nil, err
	}

	res := &ExportResult{
		Role:            role,
		Collection:      domrepo.TrainingCollection(string(role)),
		SnapshotVersion: snap.Version,
		ArtifactID:      art.ID(),
		ContractVersion: c.Version(),
	}

	var rows []models.Row
	switch role {
	case models.RoleAnomaly:
		qty := columnFloats(snap.Frame, "quantity")
		threshold, labels := anomaly.Labels(qty)
		if !math.IsNaN(threshold) {
			res.Threshold = &threshold
		}
		rows = make([]models.Row, len(vecs))
		for i, v := range vecs {
			rows[i] = featureRow(c, v, snap.Version)
			rows[i][ColLabel] = models.Bool(labels[i])
		}
	case models.RolePricing:
		target := columnFloats(snap.Frame, targetColumn(c, defaultPricingTarget))
		for i, v := range vecs {
			y := c.TransformTarget(target[i])
			if !isFinite(y) {
				continue
			}
			r := featureRow(c, v, snap.Version)
			r[ColTarget] = models.Num(y)
			rows = append(rows, r)
		}
	case models.RoleDemand:
		target := columnFloats(snap.Frame, targetColumn(c, defaultDemandTarget))
		for _, subject := range snap.Subjects() {
			idx := snap.bySubject[subject]
			// the last observation of a subject has no next step to learn
			for k := 0; k+1 < len(idx); k++ {
				y := c.TransformTarget(target[idx[k+1]])
				if !isFinite(y) {
					continue
				}
				r := featureRow(c, vecs[idx[k]], snap.Version)
				r[ColTarget] = models.Num(y)
				rows = append(rows, r)
			}
		}
	}

	if err := e.store.Replace(ctx, res.Collection, rows); err != nil {
		return nil, err
	}
	res.Rows = len(rows)

	if e.l != nil {
		e.l.Info("training dataset exported",
			applogger.String("role", string(role)),
			applogger.String("collection", res.Collection),
			applogger.Int("rows", res.Rows),
			applogger.String("snapshot_version", snap.Version),
			applogger.Duration("duration_ms", time.Since(start)))
	}
	return res, nil
}

func featureRow(c *contract.Contract, v models.AlignedVector, version string) models.Row {
	names := c.Names()
	r := make(models.Row, len(names)+3)
	for i, n := range names {
		r[n] = models.Num(v.Values[i])
	}
	if v.Subject != "" {
		r[ColSubject] = models.Str(v.Subject)
	}
	r[ColSnapshotVersion] = models.Str(version)
	return r
}

func targetColumn(c *contract.Contract, fallback string) string {
	if n := c.TargetName(); n != "" {
		return n
	}
	return fallback
}

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// columnFloats reads col from every frame row, 0 where unusable.
func columnFloats(f *models.ReconciledFrame, col string) []float64 {
	out := make([]float64, len(f.Rows))
	for i, r := range f.Rows {
		if v, ok := r.Get(col).Float(); ok {
			out[i] = v
		}
	}
	return out
}
