package repository

import (
	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	domrepo "InvSight/internal/domain/repository"
	"InvSight/internal/services/reconcile"
)

// primaryKey resolves the identifying column of a collection, preferring the
// key recorded on the stored table.
func primaryKey(collection string, t *models.EntityTable) string {
	if t != nil && t.PrimaryKey != "" {
		return t.PrimaryKey
	}
	return domrepo.PrimaryKeys[collection]
}

// mergeByKey replaces existing rows whose key matches an incoming row and
// appends the others in arrival order. A later incoming row wins over an
// earlier one with the same key.
func mergeByKey(op, collection, pk string, existing, rows []models.Row) ([]models.Row, error) {
	if pk == "" {
		return nil, errs.InvalidRequest(op, "collection %s has no primary key to upsert on", collection)
	}
	out := make([]models.Row, len(existing), len(existing)+len(rows))
	at := make(map[string]int, len(existing)+len(rows))
	for i, r := range existing {
		out[i] = r
		if k, ok := reconcile.CanonicalKey(r.Get(pk)); ok {
			at[k] = i
		}
	}
	for _, r := range rows {
		k, ok := reconcile.CanonicalKey(r.Get(pk))
		if !ok {
			return nil, errs.InvalidRequest(op, "row for %s has no %s", collection, pk)
		}
		if i, dup := at[k]; dup {
			merged := out[i].Clone()
			for c, v := range r {
				merged[c] = v
			}
			out[i] = merged
			continue
		}
		at[k] = len(out)
		out = append(out, r.Clone())
	}
	return out, nil
}

// CheckNewKeys rejects incoming rows whose primary key is already stored or
// repeated within rows.
func CheckNewKeys(op, collection, pk string, existing, rows []models.Row) error {
	if pk == "" {
		return nil
	}
	seen := make(map[string]struct{}, len(existing)+len(rows))
	for _, r := range existing {
		if k, ok := reconcile.CanonicalKey(r.Get(pk)); ok {
			seen[k] = struct{}{}
		}
	}
	for _, r := range rows {
		k, ok := reconcile.CanonicalKey(r.Get(pk))
		if !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			return errs.SchemaMismatch(op, "collection %s already has %s=%s", collection, pk, k)
		}
		seen[k] = struct{}{}
	}
	return nil
}
