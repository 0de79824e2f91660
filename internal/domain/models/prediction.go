package models

import "time"

// Role is the semantic role of a model artifact.
type Role string

const (
	RoleDemand  Role = "demand"
	RoleAnomaly Role = "anomaly"
	RolePricing Role = "pricing"
)

// Valid reports whether r is one of the served roles.
func (r Role) Valid() bool {
	switch r {
	case RoleDemand, RoleAnomaly, RolePricing:
		return true
	default:
		return false
	}
}

// PredictionRequest is the transport-independent inference request.
type PredictionRequest struct {
	RequestID string
	Role      Role
	Subject   string
	Horizon   int
	Features  Row
}

// AnomalyOutcome is the anomaly scorer output.
type AnomalyOutcome struct {
	Score   float64 `json:"score"`
	Flagged bool    `json:"flagged"`
}

// DemandForecast is the native-unit multi-step forecast.
type DemandForecast struct {
	Values []float64 `json:"values"`
	Dates  []string  `json:"dates,omitempty"`
}

// PricingOutcome is the native-unit price recommendation.
type PricingOutcome struct {
	Price   float64 `json:"price"`
	Rounded string  `json:"rounded"`
}

// PredictionResult is the role-tagged output of one inference call.
type PredictionResult struct {
	RequestID       string             `json:"request_id"`
	Role            Role               `json:"role"`
	Subject         string             `json:"subject,omitempty"`
	ArtifactID      string             `json:"artifact_id"`
	ContractVersion string             `json:"contract_version"`
	SnapshotVersion string             `json:"snapshot_version,omitempty"`
	Demand          *DemandForecast    `json:"demand,omitempty"`
	Anomaly         *AnomalyOutcome    `json:"anomaly,omitempty"`
	Pricing         *PricingOutcome    `json:"pricing,omitempty"`
	Fallbacks       []EncodingFallback `json:"fallbacks,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// ToRow flattens the result for persistence through an entity store.
func (p *PredictionResult) ToRow() Row {
	r := Row{
		"request_id":       Str(p.RequestID),
		"role":             Str(string(p.Role)),
		"subject":          Str(p.Subject),
		"artifact_id":      Str(p.ArtifactID),
		"contract_version": Str(p.ContractVersion),
		"snapshot_version": Str(p.SnapshotVersion),
		"fallbacks":        Num(float64(len(p.Fallbacks))),
		"created_at":       Time(p.CreatedAt),
		"value":            Null,
		"flagged":          Num(0),
		"horizon":          Num(0),
	}
	switch {
	case p.Demand != nil:
		r["horizon"] = Num(float64(len(p.Demand.Values)))
		if n := len(p.Demand.Values); n > 0 {
			r["value"] = Num(p.Demand.Values[n-1])
		}
	case p.Anomaly != nil:
		r["value"] = Num(p.Anomaly.Score)
		r["flagged"] = Bool(p.Anomaly.Flagged)
	case p.Pricing != nil:
		r["value"] = Num(p.Pricing.Price)
	}
	return r
}
