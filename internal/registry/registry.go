package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	"InvSight/internal/domain/repository"
	"InvSight/internal/domain/service"
	"InvSight/internal/services/contract"
	"InvSight/internal/services/predictor"
	applogger "InvSight/pkg/logger"
)

// Artifact is an immutable trained predictor bound to one contract and one role.
type Artifact struct {
	id       string
	role     models.Role
	kind     string
	contract *contract.Contract

	step       service.StepPredictor
	regressor  service.Regressor
	classifier service.Classifier
}

// NewArtifact binds model to c for role. model must implement the interface the role needs.
func NewArtifact(id string, role models.Role, kind string, c *contract.Contract, model interface{}) (*Artifact, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("artifact id required")
	}
	if c == nil {
		return nil, fmt.Errorf("artifact %s: contract required", id)
	}
	a := &Artifact{id: id, role: role, kind: kind, contract: c}
	var ok bool
	switch role {
	case models.RoleDemand:
		a.step, ok = model.(service.StepPredictor)
		if ok && c.TargetName() == "" {
			return nil, fmt.Errorf("artifact %s: demand contract %s declares no target", id, c.Name())
		}
	case models.RolePricing:
		a.regressor, ok = model.(service.Regressor)
		if ok {
			switch c.TargetKind() {
			case models.TransformLog1p, models.TransformLog:
			default:
				return nil, fmt.Errorf("artifact %s: pricing target must be log-transformed, contract %s uses %s", id, c.Name(), c.TargetKind())
			}
		}
	case models.RoleAnomaly:
		a.classifier, ok = model.(service.Classifier)
	default:
		return nil, fmt.Errorf("artifact %s: unknown role %q", id, role)
	}
	if !ok {
		return nil, fmt.Errorf("artifact %s: predictor %s cannot serve role %s", id, kind, role)
	}
	return a, nil
}

func (a *Artifact) ID() string                   { return a.id }
func (a *Artifact) Role() models.Role            { return a.role }
func (a *Artifact) Kind() string                 { return a.kind }
func (a *Artifact) Contract() *contract.Contract { return a.contract }

// Accepts checks that v was aligned against this artifact's contract.
func (a *Artifact) Accepts(v models.AlignedVector) error {
	if v.Contract != a.contract.Name() || v.Version != a.contract.Version() {
		return errs.ModelInference("artifact "+a.id, fmt.Errorf("vector aligned against %s@%s, artifact expects %s@%s",
			v.Contract, v.Version, a.contract.Name(), a.contract.Version()))
	}
	if len(v.Values) != a.contract.Len() {
		return errs.ModelInference("artifact "+a.id, fmt.Errorf("vector width %d, contract width %d", len(v.Values), a.contract.Len()))
	}
	return nil
}

// StepPredictor returns the demand predictor guarded by the contract width.
func (a *Artifact) StepPredictor() (service.StepPredictor, error) {
	if a.step == nil {
		return nil, errs.Newf(errs.KindArtifactUnavailable, "artifact "+a.id, "role %s has no step predictor", a.role)
	}
	return guardedStep{a: a}, nil
}

func (a *Artifact) Regressor() (service.Regressor, error) {
	if a.regressor == nil {
		return nil, errs.Newf(errs.KindArtifactUnavailable, "artifact "+a.id, "role %s has no regressor", a.role)
	}
	return a.regressor, nil
}

func (a *Artifact) Classifier() (service.Classifier, error) {
	if a.classifier == nil {
		return nil, errs.Newf(errs.KindArtifactUnavailable, "artifact "+a.id, "role %s has no classifier", a.role)
	}
	return a.classifier, nil
}

type guardedStep struct{ a *Artifact }

func (g guardedStep) PredictStep(ctx context.Context, window [][]float64) (float64, error) {
	want := g.a.contract.Len()
	for i, v := range window {
		if len(v) != want {
			return 0, fmt.Errorf("window entry %d has width %d, contract %s width %d", i, len(v), g.a.contract.Name(), want)
		}
	}
	return g.a.step.PredictStep(ctx, window)
}

// Info is the listing view of an artifact.
type Info struct {
	ID              string      `json:"id"`
	Role            models.Role `json:"role"`
	Kind            string      `json:"kind"`
	Default         bool        `json:"default"`
	Contract        string      `json:"contract"`
	ContractVersion string      `json:"contract_version"`
	Features        []string    `json:"features"`
}

// Registry holds artifacts loaded once at start. It is read-only afterwards and safe for concurrent use.
type Registry struct {
	artifacts map[string]*Artifact
	order     []string
	byRole    map[models.Role]string
	location  string
}

// New builds a registry. The first artifact of each role is its default unless one is listed in defaults.
func New(arts []*Artifact, defaults ...string) (*Registry, error) {
	r := &Registry{
		artifacts: make(map[string]*Artifact, len(arts)),
		byRole:    make(map[models.Role]string),
	}
	for _, a := range arts {
		if _, exists := r.artifacts[a.id]; exists {
			return nil, fmt.Errorf("duplicate artifact id: %s", a.id)
		}
		r.artifacts[a.id] = a
		r.order = append(r.order, a.id)
		if _, ok := r.byRole[a.role]; !ok {
			r.byRole[a.role] = a.id
		}
	}
	seen := map[models.Role]bool{}
	for _, id := range defaults {
		a, ok := r.artifacts[id]
		if !ok {
			return nil, fmt.Errorf("default artifact %s not declared", id)
		}
		if seen[a.role] {
			return nil, fmt.Errorf("role %s has more than one default artifact", a.role)
		}
		seen[a.role] = true
		r.byRole[a.role] = id
	}
	return r, nil
}

// Load reads the manifest and every referenced contract from src and builds the registry.
func Load(ctx context.Context, src repository.ArtifactSource, manifest string, l *applogger.Logger) (*Registry, error) {
	b, err := src.ReadObject(ctx, manifest)
	if err != nil {
		return nil, errs.Wrap(errs.KindArtifactUnavailable, "load manifest "+manifest, err)
	}
	m, err := ParseManifest(b)
	if err != nil {
		return nil, err
	}

	contracts := map[string]*contract.Contract{}
	var arts []*Artifact
	var defaults []string
	for _, e := range m.Artifacts {
		c, ok := contracts[e.Contract]
		if !ok {
			cb, err := src.ReadObject(ctx, e.Contract)
			if err != nil {
				return nil, errs.Wrap(errs.KindArtifactUnavailable, "load contract "+e.Contract, err)
			}
			spec, err := ParseContract(cb)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", e.Contract, err)
			}
			c, err = contract.New(spec)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", e.Contract, err)
			}
			contracts[e.Contract] = c
		}
		if e.ContractVersion != "" && e.ContractVersion != c.Version() {
			return nil, fmt.Errorf("artifact %s pins contract version %s, %s is %s", e.ID, e.ContractVersion, e.Contract, c.Version())
		}

		model, err := predictor.New(e.Predictor)
		if err != nil {
			return nil, fmt.Errorf("artifact %s: %w", e.ID, err)
		}
		a, err := NewArtifact(e.ID, e.Role, e.Predictor.Kind, c, model)
		if err != nil {
			return nil, err
		}
		arts = append(arts, a)
		if e.Default {
			defaults = append(defaults, e.ID)
		}
		if l != nil {
			l.Info("artifact loaded",
				applogger.String("id", a.id),
				applogger.String("role", string(a.role)),
				applogger.String("kind", a.kind),
				applogger.String("contract", c.Name()),
				applogger.String("contract_version", c.Version()))
		}
	}

	r, err := New(arts, defaults...)
	if err != nil {
		return nil, err
	}
	r.location = src.Location() + "/" + manifest
	return r, nil
}

// ForRole returns the default artifact serving role.
func (r *Registry) ForRole(role models.Role) (*Artifact, error) {
	id, ok := r.byRole[role]
	if !ok {
		return nil, errs.Newf(errs.KindArtifactUnavailable, "registry", "no artifact serves role %s", role)
	}
	return r.artifacts[id], nil
}

// Get returns an artifact by id.
func (r *Registry) Get(id string) (*Artifact, bool) {
	a, ok := r.artifacts[strings.TrimSpace(id)]
	return a, ok
}

// List returns artifacts in declaration order.
func (r *Registry) List() []Info {
	out := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		a := r.artifacts[id]
		out = append(out, Info{
			ID:              a.id,
			Role:            a.role,
			Kind:            a.kind,
			Default:         r.byRole[a.role] == id,
			Contract:        a.contract.Name(),
			ContractVersion: a.contract.Version(),
			Features:        a.contract.Names(),
		})
	}
	return out
}

// Roles returns the served roles, sorted.
func (r *Registry) Roles() []models.Role {
	out := make([]models.Role, 0, len(r.byRole))
	for role := range r.byRole {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Location describes where the registry was loaded from.
func (r *Registry) Location() string { return r.location }
