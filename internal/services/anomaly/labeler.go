package anomaly

import (
	"math"

	"InvSight/pkg/util"
)

// LabelQuantile is the training label rule: a transaction is anomalous when its
// quantity is strictly above this quantile of the training quantities.
const LabelQuantile = 0.99

// Threshold returns the LabelQuantile cut over quantities.
func Threshold(quantities []float64) float64 {
	return util.Quantile(quantities, LabelQuantile)
}

// Labels applies the label rule. With no usable quantities nothing is flagged.
func Labels(quantities []float64) (threshold float64, labels []bool) {
	threshold = Threshold(quantities)
	labels = make([]bool, len(quantities))
	if math.IsNaN(threshold) {
		return threshold, labels
	}
	for i, q := range quantities {
		labels[i] = q > threshold
	}
	return threshold, labels
}
