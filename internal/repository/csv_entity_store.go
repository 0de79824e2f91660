package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	domrepo "InvSight/internal/domain/repository"
	applogger "InvSight/pkg/logger"
)

// CSVEntityStore reads <dir>/<collection>.csv. Cells that parse as numbers
// become numbers, empty cells become null, everything else stays a string.
type CSVEntityStore struct {
	dir string
	mu  sync.Mutex
	l   *applogger.Logger
}

func NewCSVEntityStore(dir string) *CSVEntityStore {
	return &CSVEntityStore{dir: dir}
}

func (s *CSVEntityStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CSVEntityStore) path(collection string) string {
	return filepath.Join(s.dir, collection+".csv")
}

func (s *CSVEntityStore) Fetch(ctx context.Context, collection string) (*models.EntityTable, error) {
	const op = "csv_store.fetch"
	if !domrepo.IsValidCollection(collection) {
		return nil, errs.InvalidRequest(op, "invalid collection name %q", collection)
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Store(op, err)
	}
	start := time.Now()

	f, err := os.Open(s.path(collection))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.SchemaMismatch(op, "collection %s not found in %s", collection, s.dir)
		}
		return nil, errs.Store(op, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return domrepo.Describe(models.NewEntityTable(collection, "", nil, nil)), nil
		}
		return nil, errs.Store(op, fmt.Errorf("read header: %w", err))
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = normalizeHeader(h)
	}

	var rows []models.Row
	for line := 2; ; line++ {
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errs.Store(op, err)
			}
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errs.Store(op, fmt.Errorf("%s line %d: %w", collection, line, err))
		}
		row := make(models.Row, len(cols))
		for i, c := range cols {
			if i >= len(rec) {
				row[c] = models.Null
				continue
			}
			row[c] = parseCell(rec[i])
		}
		rows = append(rows, row)
	}

	if s.l != nil {
		s.l.Debug("csv collection loaded",
			applogger.String("collection", collection),
			applogger.Int("rows", len(rows)),
			applogger.Duration("duration_ms", time.Since(start)))
	}
	return domrepo.Describe(models.NewEntityTable(collection, "", cols, rows)), nil
}

// Write appends rows, creating the file with a sorted header when absent.
// Appending to an existing file keeps its header; a row carrying a column the
// header lacks is rejected.
func (s *CSVEntityStore) Write(ctx context.Context, collection string, rows []models.Row) (err error) {
	const op = "csv_store.write"
	if !domrepo.IsValidCollection(collection) {
		return errs.InvalidRequest(op, "invalid collection name %q", collection)
	}
	if len(rows) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errs.Store(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.path(collection)
	header, err := readHeader(p)
	if err != nil {
		return errs.Store(op, err)
	}
	fresh := header == nil
	if fresh {
		header = models.ColumnsOf(rows)
	} else if err := coversColumns(op, collection, header, rows); err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errs.Store(op, err)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errs.Store(op, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errs.Store(op, cerr)
		}
	}()

	if err := writeRecords(f, header, rows, fresh); err != nil {
		return errs.Store(op, err)
	}
	return nil
}

// Upsert rewrites the collection with rows merged on its primary key.
func (s *CSVEntityStore) Upsert(ctx context.Context, collection string, rows []models.Row) error {
	const op = "csv_store.upsert"
	if !domrepo.IsValidCollection(collection) {
		return errs.InvalidRequest(op, "invalid collection name %q", collection)
	}
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.Fetch(ctx, collection)
	if err != nil && !errs.Is(err, errs.KindSchemaMismatch) {
		return err
	}
	if cur == nil {
		cur = domrepo.Describe(models.NewEntityTable(collection, "", nil, nil))
	}
	merged, err := mergeByKey(op, collection, primaryKey(collection, cur), cur.Rows, rows)
	if err != nil {
		return err
	}
	header := cur.Columns
	for _, c := range models.ColumnsOf(rows) {
		if !contains(header, c) {
			header = append(header, c)
		}
	}
	if err := s.rewrite(collection, header, merged); err != nil {
		return errs.Store(op, err)
	}
	return nil
}

// Replace writes rows to a temporary file and renames it over the collection.
func (s *CSVEntityStore) Replace(ctx context.Context, collection string, rows []models.Row) error {
	const op = "csv_store.replace"
	if !domrepo.IsValidCollection(collection) {
		return errs.InvalidRequest(op, "invalid collection name %q", collection)
	}
	if err := ctx.Err(); err != nil {
		return errs.Store(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rewrite(collection, models.ColumnsOf(rows), rows); err != nil {
		return errs.Store(op, err)
	}
	return nil
}

func (s *CSVEntityStore) rewrite(collection string, header []string, rows []models.Row) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+collection+"-*.csv.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := writeRecords(tmp, header, rows, true); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path(collection))
}

func writeRecords(f io.Writer, header []string, rows []models.Row, withHeader bool) error {
	w := csv.NewWriter(f)
	if withHeader {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	rec := make([]string, len(header))
	for _, r := range rows {
		for i, c := range header {
			rec[i] = formatCell(r.Get(c))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func coversColumns(op, collection string, header []string, rows []models.Row) error {
	known := make(map[string]struct{}, len(header))
	for _, h := range header {
		known[normalizeHeader(h)] = struct{}{}
	}
	for _, c := range models.ColumnsOf(rows) {
		if _, ok := known[c]; !ok {
			return errs.SchemaMismatch(op, "collection %s has no column %s", collection, c)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Collections lists the collections present in the directory.
func (s *CSVEntityStore) Collections() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSuffix(filepath.Base(m), ".csv"))
	}
	sort.Strings(out)
	return out, nil
}

func (s *CSVEntityStore) Close() error { return nil }

func readHeader(p string) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	h, err := csv.NewReader(f).Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	return h, err
}

func normalizeHeader(h string) string {
	h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	h = strings.ToLower(h)
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}

func parseCell(s string) models.Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.Null
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return models.Num(f)
	}
	return models.Str(s)
}

func formatCell(v models.Value) string {
	switch v.Kind {
	case models.KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case models.KindTime:
		return v.Time.UTC().Format(time.RFC3339)
	case models.KindString:
		return v.Str
	default:
		return ""
	}
}

var _ domrepo.EntityStore = (*CSVEntityStore)(nil)
