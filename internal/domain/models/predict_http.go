package models

// Requests for inference HTTP endpoints. Defined in domain for consistency and reuse.

type PredictRequest struct {
	Role     string                 `param:"role" json:"-" validate:"required,oneof=demand anomaly pricing"`
	Subject  string                 `json:"subject"`
	Horizon  int                    `json:"horizon" default:"7" validate:"gte=1,lte=365"`
	Features map[string]interface{} `json:"features"`
}

type RefreshRequest struct {
	Wait bool `query:"wait" json:"wait"`
}

type ReplenishmentRequest struct {
	Quantile float64 `query:"quantile" json:"quantile" default:"0.75" validate:"gt=0,lt=1"`
	Limit    int     `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=10000"`
}

type ExportRequest struct {
	Role string `param:"role" json:"-" validate:"required,oneof=demand anomaly pricing"`
}

type CollectionRequest struct {
	Name   string `param:"name" json:"-" validate:"required"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=10000"`
	Offset int    `query:"offset" json:"offset" validate:"gte=0"`
}
