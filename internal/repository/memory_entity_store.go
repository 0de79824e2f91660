package repository

import (
	"context"
	"sync"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	domrepo "InvSight/internal/domain/repository"
)

// MemoryEntityStore keeps collections in process. Fetch returns copies.
type MemoryEntityStore struct {
	mu     sync.RWMutex
	tables map[string]*models.EntityTable
}

func NewMemoryEntityStore(tables ...*models.EntityTable) *MemoryEntityStore {
	s := &MemoryEntityStore{tables: make(map[string]*models.EntityTable, len(tables))}
	for _, t := range tables {
		s.Put(t)
	}
	return s
}

// Put replaces a whole collection.
func (s *MemoryEntityStore) Put(t *models.EntityTable) {
	if t == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[t.Name] = domrepo.Describe(copyTable(t))
}

func (s *MemoryEntityStore) Fetch(ctx context.Context, collection string) (*models.EntityTable, error) {
	const op = "memory_store.fetch"
	if err := ctx.Err(); err != nil {
		return nil, errs.Store(op, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[collection]
	if !ok {
		return nil, errs.SchemaMismatch(op, "collection %s not found", collection)
	}
	return copyTable(t), nil
}

func (s *MemoryEntityStore) Write(ctx context.Context, collection string, rows []models.Row) error {
	const op = "memory_store.write"
	if !domrepo.IsValidCollection(collection) {
		return errs.InvalidRequest(op, "invalid collection name %q", collection)
	}
	if err := ctx.Err(); err != nil {
		return errs.Store(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[collection]
	if !ok {
		t = domrepo.Describe(models.NewEntityTable(collection, "", nil, nil))
		s.tables[collection] = t
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, r.Clone())
	}
	t.Columns = models.ColumnsOf(t.Rows)
	return nil
}

func (s *MemoryEntityStore) Upsert(ctx context.Context, collection string, rows []models.Row) error {
	const op = "memory_store.upsert"
	if !domrepo.IsValidCollection(collection) {
		return errs.InvalidRequest(op, "invalid collection name %q", collection)
	}
	if err := ctx.Err(); err != nil {
		return errs.Store(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[collection]
	if !ok {
		t = domrepo.Describe(models.NewEntityTable(collection, "", nil, nil))
	}
	merged, err := mergeByKey(op, collection, primaryKey(collection, t), t.Rows, rows)
	if err != nil {
		return err
	}
	t.Rows = merged
	t.Columns = models.ColumnsOf(t.Rows)
	s.tables[collection] = t
	return nil
}

func (s *MemoryEntityStore) Replace(ctx context.Context, collection string, rows []models.Row) error {
	const op = "memory_store.replace"
	if !domrepo.IsValidCollection(collection) {
		return errs.InvalidRequest(op, "invalid collection name %q", collection)
	}
	if err := ctx.Err(); err != nil {
		return errs.Store(op, err)
	}
	s.Put(models.NewEntityTable(collection, "", nil, rows))
	return nil
}

// Collections lists stored collection names.
func (s *MemoryEntityStore) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tables))
	for k := range s.tables {
		out = append(out, k)
	}
	return out
}

func (s *MemoryEntityStore) Close() error { return nil }

func copyTable(t *models.EntityTable) *models.EntityTable {
	rows := make([]models.Row, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = r.Clone()
	}
	out := &models.EntityTable{
		Name:        t.Name,
		PrimaryKey:  t.PrimaryKey,
		ForeignKeys: append([]models.ForeignKey(nil), t.ForeignKeys...),
		Columns:     append([]string(nil), t.Columns...),
		Rows:        rows,
	}
	if len(out.Columns) == 0 {
		out.Columns = models.ColumnsOf(rows)
	}
	return out
}

var _ domrepo.EntityStore = (*MemoryEntityStore)(nil)
