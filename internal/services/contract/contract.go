package contract

import (
	"fmt"

	"InvSight/internal/domain/models"
)

type feature struct {
	name    string
	typ     models.FeatureType
	scaler  Scaler
	encoder *Encoder
}

// Contract is the immutable, ordered input specification of one model artifact
// together with its fitted encoders and scalers.
type Contract struct {
	spec     models.ContractSpec
	features []feature
	index    map[string]int
	target   *Scaler
	targetAt int
}

// New builds a contract from its serialized form. The spec is deep-copied; later
// changes to it do not affect the contract.
func New(spec models.ContractSpec) (*Contract, error) {
	if spec.Name == "" || spec.Version == "" {
		return nil, fmt.Errorf("contract: name and version are required")
	}
	if len(spec.Features) == 0 {
		return nil, fmt.Errorf("contract %s: no features", spec.Name)
	}

	c := &Contract{
		spec:     copySpec(spec),
		features: make([]feature, len(spec.Features)),
		index:    make(map[string]int, len(spec.Features)),
		targetAt: -1,
	}
	for i, fs := range c.spec.Features {
		if fs.Name == "" {
			return nil, fmt.Errorf("contract %s: feature %d has no name", spec.Name, i)
		}
		if _, dup := c.index[fs.Name]; dup {
			return nil, fmt.Errorf("contract %s: duplicate feature %s", spec.Name, fs.Name)
		}
		c.index[fs.Name] = i

		f := feature{name: fs.Name, typ: fs.Type}
		switch fs.Type {
		case models.FeatureCategorical:
			if fs.Transform != "" && fs.Transform != models.TransformLabel {
				return nil, fmt.Errorf("contract %s: categorical feature %s needs label transform, got %s", spec.Name, fs.Name, fs.Transform)
			}
			enc, err := NewEncoder(fs.Categories)
			if err != nil {
				return nil, fmt.Errorf("contract %s: feature %s: %w", spec.Name, fs.Name, err)
			}
			f.encoder = enc
		case models.FeatureNumeric, "":
			f.typ = models.FeatureNumeric
			p := models.ScaleParams{Kind: fs.Transform}
			if fs.Scale != nil {
				p = *fs.Scale
				if fs.Transform != "" && p.Kind != "" && p.Kind != fs.Transform {
					return nil, fmt.Errorf("contract %s: feature %s transform %s disagrees with scale kind %s", spec.Name, fs.Name, fs.Transform, p.Kind)
				}
				if p.Kind == "" {
					p.Kind = fs.Transform
				}
			}
			s, err := NewScaler(p)
			if err != nil {
				return nil, fmt.Errorf("contract %s: feature %s: %w", spec.Name, fs.Name, err)
			}
			f.scaler = s
		default:
			return nil, fmt.Errorf("contract %s: feature %s has unknown type %q", spec.Name, fs.Name, fs.Type)
		}
		c.features[i] = f
	}

	if t := c.spec.Target; t != nil {
		s, err := NewScaler(t.Scale)
		if err != nil {
			return nil, fmt.Errorf("contract %s: target: %w", spec.Name, err)
		}
		c.target = &s
		if pos, ok := c.index[t.Name]; ok {
			c.targetAt = pos
		}
	}
	return c, nil
}

func copySpec(s models.ContractSpec) models.ContractSpec {
	out := s
	out.Features = make([]models.FeatureSpec, len(s.Features))
	for i, f := range s.Features {
		cp := f
		if f.Scale != nil {
			sc := *f.Scale
			cp.Scale = &sc
		}
		if f.Categories != nil {
			cp.Categories = append([]string(nil), f.Categories...)
		}
		out.Features[i] = cp
	}
	if s.Target != nil {
		t := *s.Target
		out.Target = &t
	}
	return out
}

func (c *Contract) Name() string    { return c.spec.Name }
func (c *Contract) Version() string { return c.spec.Version }

// Subject is the identifying column required to align a row, empty when none is required.
func (c *Contract) Subject() string { return c.spec.Subject }

// Len is the aligned vector length.
func (c *Contract) Len() int { return len(c.features) }

// Names returns feature names in contract order.
func (c *Contract) Names() []string {
	out := make([]string, len(c.features))
	for i, f := range c.features {
		out[i] = f.name
	}
	return out
}

// Position returns the vector position of a feature.
func (c *Contract) Position(name string) (int, bool) {
	i, ok := c.index[name]
	return i, ok
}

// Spec returns a copy of the serialized form.
func (c *Contract) Spec() models.ContractSpec { return copySpec(c.spec) }

// TargetName is the name of the model output, empty when the contract declares no target.
func (c *Contract) TargetName() string {
	if c.spec.Target == nil {
		return ""
	}
	return c.spec.Target.Name
}

// TargetPosition is the vector position of the target when it is also a feature, else -1.
func (c *Contract) TargetPosition() int { return c.targetAt }

// TransformTarget maps a native target value into model space.
func (c *Contract) TransformTarget(x float64) float64 {
	if c.target == nil {
		return x
	}
	return c.target.Transform(x)
}

// InverseTarget maps a model output back to native units.
func (c *Contract) InverseTarget(y float64) float64 {
	if c.target == nil {
		return y
	}
	return c.target.Inverse(y)
}

// TargetKind returns the target transform kind, identity when absent.
func (c *Contract) TargetKind() models.TransformKind {
	if c.target == nil {
		return models.TransformIdentity
	}
	return c.target.Params().Kind
}
