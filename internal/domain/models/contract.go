package models

// FeatureType is the declared type of a contract feature.
type FeatureType string

const (
	FeatureNumeric     FeatureType = "numeric"
	FeatureCategorical FeatureType = "categorical"
)

// TransformKind selects the frozen transform applied to a feature or target.
type TransformKind string

const (
	TransformIdentity TransformKind = "identity"
	TransformMinMax   TransformKind = "minmax"
	TransformStandard TransformKind = "standard"
	TransformRobust   TransformKind = "robust"
	TransformLog1p    TransformKind = "log1p"
	TransformLog      TransformKind = "log"
	TransformLabel    TransformKind = "label"
)

// ScaleParams holds fitted parameters for a numeric transform.
// MinMax uses Min/Max, Standard uses Mean/Std, Robust uses Center/Scale.
type ScaleParams struct {
	Kind   TransformKind `json:"kind" yaml:"kind"`
	Min    float64       `json:"min,omitempty" yaml:"min,omitempty"`
	Max    float64       `json:"max,omitempty" yaml:"max,omitempty"`
	Mean   float64       `json:"mean,omitempty" yaml:"mean,omitempty"`
	Std    float64       `json:"std,omitempty" yaml:"std,omitempty"`
	Center float64       `json:"center,omitempty" yaml:"center,omitempty"`
	Scale  float64       `json:"scale,omitempty" yaml:"scale,omitempty"`
}

// FeatureSpec is one (name, type, transform) entry of a contract.
type FeatureSpec struct {
	Name      string        `json:"name" yaml:"name"`
	Type      FeatureType   `json:"type" yaml:"type"`
	Transform TransformKind `json:"transform" yaml:"transform"`
	// Scale is required for numeric features with a fitted transform.
	Scale *ScaleParams `json:"scale,omitempty" yaml:"scale,omitempty"`
	// Categories is the frozen label table; code = index.
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`
}

// TargetSpec describes the model output space.
type TargetSpec struct {
	Name  string      `json:"name" yaml:"name"`
	Index int         `json:"index" yaml:"index"`
	Scale ScaleParams `json:"scale" yaml:"scale"`
}

// ContractSpec is the serialized form of a feature contract, as produced by training.
type ContractSpec struct {
	Name     string        `json:"name" yaml:"name"`
	Version  string        `json:"version" yaml:"version"`
	Subject  string        `json:"subject,omitempty" yaml:"subject,omitempty"`
	Features []FeatureSpec `json:"features" yaml:"features"`
	Target   *TargetSpec   `json:"target,omitempty" yaml:"target,omitempty"`
}

// EncodingFallback records an unseen category mapped to the reserved unknown code.
type EncodingFallback struct {
	Contract string `json:"contract"`
	Feature  string `json:"feature"`
	Category string `json:"category"`
	Code     int    `json:"code"`
}

// AlignedVector is a contract-ordered, encoded and scaled feature vector.
type AlignedVector struct {
	Contract  string             `json:"contract"`
	Version   string             `json:"version"`
	Subject   string             `json:"subject,omitempty"`
	Values    []float64          `json:"values"`
	Fallbacks []EncodingFallback `json:"fallbacks,omitempty"`
}
