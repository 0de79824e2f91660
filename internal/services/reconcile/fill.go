package reconcile

import (
	"time"

	"InvSight/internal/domain/models"
)

// inferKinds picks one kind per column: string wins over time, time over number.
// All-null columns are numeric.
func inferKinds(rows []models.Row, cols []string) map[string]models.ValueKind {
	kinds := make(map[string]models.ValueKind, len(cols))
	for _, c := range cols {
		kind := models.KindNumber
		for _, r := range rows {
			v := r.Get(c)
			if v.IsNull() {
				continue
			}
			if v.Kind == models.KindString {
				kind = models.KindString
				break
			}
			if v.Kind == models.KindTime {
				kind = models.KindTime
			}
		}
		kinds[c] = kind
	}
	return kinds
}

// fill replaces every missing cell: numeric columns get 0, categorical columns the sentinel,
// time columns the zero time.
func fill(rows []models.Row, cols []string, sentinel string) map[string]models.ValueKind {
	kinds := inferKinds(rows, cols)
	for _, r := range rows {
		for _, c := range cols {
			if v, ok := r[c]; ok && !v.IsNull() {
				continue
			}
			switch kinds[c] {
			case models.KindString:
				r[c] = models.Str(sentinel)
			case models.KindTime:
				r[c] = models.Time(time.Time{})
			default:
				r[c] = models.Num(0)
			}
		}
	}
	return kinds
}
