package contract

import (
	"math"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	"InvSight/internal/domain/repository"
	"InvSight/internal/services/reconcile"
	applogger "InvSight/pkg/logger"
)

// Enforcer turns reconciled rows into contract-ordered vectors.
//
// Align is total: a feature missing from the row (or null) is written as 0, an
// unparseable numeric value is treated as missing, an unseen category maps to
// UnknownCode and is reported as an encoding fallback, and columns the contract
// does not declare are ignored. The only failure is a missing subject key.
type Enforcer struct {
	l *applogger.Logger
	m repository.Metrics
}

func NewEnforcer() *Enforcer { return &Enforcer{} }

func (e *Enforcer) SetLogger(l *applogger.Logger) { e.l = l }

func (e *Enforcer) SetMetrics(m repository.Metrics) { e.m = m }

// Align aligns every row of frame, in frame order.
func (e *Enforcer) Align(frame *models.ReconciledFrame, c *Contract) ([]models.AlignedVector, error) {
	if frame == nil {
		return nil, nil
	}
	out := make([]models.AlignedVector, 0, len(frame.Rows))
	for _, r := range frame.Rows {
		v, err := e.AlignRow(r, c)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// AlignRow aligns one row against c.
func (e *Enforcer) AlignRow(row models.Row, c *Contract) (models.AlignedVector, error) {
	vec := models.AlignedVector{
		Contract: c.Name(),
		Version:  c.Version(),
		Values:   make([]float64, len(c.features)),
	}

	if subj := c.Subject(); subj != "" {
		key, ok := reconcile.CanonicalKey(row.Get(subj))
		if !ok {
			return models.AlignedVector{}, errs.ContractViolation("align", "contract %s requires identifying field %s", c.Name(), subj)
		}
		vec.Subject = key
	}

	for i, f := range c.features {
		v := row.Get(f.name)
		if v.IsNull() {
			continue
		}
		switch f.typ {
		case models.FeatureCategorical:
			label := v.String()
			code, known := f.encoder.Encode(label)
			if !known {
				fb := models.EncodingFallback{Contract: c.Name(), Feature: f.name, Category: label, Code: code}
				vec.Fallbacks = append(vec.Fallbacks, fb)
				e.observeFallback(c, fb)
			}
			vec.Values[i] = float64(code)
		default:
			x, ok := v.Float()
			if !ok {
				e.warnDefaulted(c, f.name, "non-numeric value")
				continue
			}
			y := f.scaler.Transform(x)
			if math.IsNaN(y) || math.IsInf(y, 0) {
				e.warnDefaulted(c, f.name, "value outside transform domain")
				continue
			}
			vec.Values[i] = y
		}
	}
	return vec, nil
}

func (e *Enforcer) observeFallback(c *Contract, fb models.EncodingFallback) {
	if e.l != nil {
		e.l.Warn("encoding fallback",
			applogger.String("contract", c.Name()),
			applogger.String("version", c.Version()),
			applogger.String("feature", fb.Feature),
			applogger.String("category", fb.Category),
			applogger.Int("code", fb.Code))
	}
	if e.m != nil {
		e.m.RecordEncodingFallback(c.Name(), fb.Feature)
	}
}

func (e *Enforcer) warnDefaulted(c *Contract, feature, reason string) {
	if e.l == nil {
		return
	}
	e.l.Warn("feature defaulted to 0",
		applogger.String("contract", c.Name()),
		applogger.String("feature", feature),
		applogger.String("reason", reason))
}
