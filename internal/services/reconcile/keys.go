package reconcile

import (
	"strconv"
	"strings"
	"time"

	"InvSight/internal/domain/models"
	"InvSight/pkg/util"
)

// CanonicalKey renders a join or subject key in its canonical form:
// numeric if parseable, else the trimmed string. ok is false for null keys.
func CanonicalKey(v models.Value) (string, bool) {
	if v.IsNull() {
		return "", false
	}
	switch v.Kind {
	case models.KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64), true
	case models.KindString:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return "", false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
		return s, true
	case models.KindTime:
		return strconv.FormatInt(v.Time.UnixNano(), 10), true
	}
	return "", false
}

// CoerceKey converts a key value to the canonical type used in the reconciled frame.
func CoerceKey(v models.Value) models.Value {
	if v.Kind != models.KindString {
		return v
	}
	s := strings.TrimSpace(v.Str)
	if s == "" {
		return models.Null
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return models.Num(f)
	}
	return models.Str(s)
}

// ParseTimestamp accepts time values, unix seconds and the textual layouts util.ParseTime knows.
func ParseTimestamp(v models.Value) (time.Time, bool) {
	switch v.Kind {
	case models.KindTime:
		return v.Time, !v.Time.IsZero()
	case models.KindNumber:
		if v.IsNull() || v.Num <= 0 {
			return time.Time{}, false
		}
		return time.Unix(int64(v.Num), 0).UTC(), true
	case models.KindString:
		if t, ok := util.ParseTime(v.Str); ok {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
