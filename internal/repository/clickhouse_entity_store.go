package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	domrepo "InvSight/internal/domain/repository"
	pkgch "InvSight/pkg/clickhouse"
	applogger "InvSight/pkg/logger"
)

// CHEntityStore implements EntityStore backed by ClickHouse. Every collection
// is a table in one database; Fetch scans any schema generically.
type CHEntityStore struct {
	ch       *pkgch.Client
	database string
	ensured  sync.Map
	l        *applogger.Logger
}

func NewCHEntityStore(ch *pkgch.Client, database string) *CHEntityStore {
	return &CHEntityStore{ch: ch, database: database}
}

// SetLogger injects a structured logger.
func (s *CHEntityStore) SetLogger(l *applogger.Logger) { s.l = l }

// Schema returns the DDL for the database and the predictions output table.
// database must already be a quoted identifier.
func Schema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			request_id String,
			role LowCardinality(String),
			subject String,
			artifact_id String,
			contract_version String,
			snapshot_version String,
			value Nullable(Float64),
			flagged Float64,
			horizon Float64,
			fallbacks Float64,
			created_at DateTime64(3)
		) ENGINE = MergeTree
		ORDER BY (role, created_at)`, database, domrepo.CollectionPredictions),
	}
}

// Init creates the database and the predictions table.
func (s *CHEntityStore) Init(ctx context.Context) error {
	const op = "clickhouse_store.init"
	db, err := pkgch.Ident(s.database)
	if err != nil {
		return errs.InvalidRequest(op, "%v", err)
	}
	if err := s.ch.InitSchema(ctx, Schema(db)); err != nil {
		return errs.Store(op, err)
	}
	s.ensured.Store(domrepo.CollectionPredictions, true)
	return nil
}

// table returns the quoted, database-qualified name of a collection.
func (s *CHEntityStore) table(op, collection string) (string, error) {
	if !domrepo.IsValidCollection(collection) {
		return "", errs.InvalidRequest(op, "invalid collection name %q", collection)
	}
	q, err := pkgch.QualifiedTable(s.database + "." + collection)
	if err != nil {
		return "", errs.InvalidRequest(op, "%v", err)
	}
	return q, nil
}

func (s *CHEntityStore) Fetch(ctx context.Context, collection string) (*models.EntityTable, error) {
	const op = "clickhouse_store.fetch"
	table, err := s.table(op, collection)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	cols, recs, err := s.ch.QueryRows(ctx, "SELECT * FROM "+table)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse fetch error",
				applogger.String("collection", collection),
				applogger.Error(err),
			)
		}
		if strings.Contains(err.Error(), "UNKNOWN_TABLE") {
			return nil, errs.SchemaMismatch(op, "collection %s not found", collection)
		}
		return nil, errs.Store(op, fmt.Errorf("fetch %s: %w", collection, err))
	}

	rows := make([]models.Row, len(recs))
	for i, rec := range recs {
		row := make(models.Row, len(rec))
		for k, v := range rec {
			row[k] = models.FromAny(v)
		}
		rows[i] = row
	}

	if s.l != nil {
		s.l.Info("clickhouse fetch ok",
			applogger.String("collection", collection),
			applogger.Int("rows", len(rows)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return domrepo.Describe(models.NewEntityTable(collection, "", cols, rows)), nil
}

// Write inserts rows, creating the table from the first row's value kinds when
// it does not exist yet.
func (s *CHEntityStore) Write(ctx context.Context, collection string, rows []models.Row) error {
	const op = "clickhouse_store.write"
	if _, err := s.table(op, collection); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	cols := models.ColumnsOf(rows)
	defs, err := columnDefs(op, cols, rows)
	if err != nil {
		return err
	}
	if err := s.ensureTable(ctx, op, collection, defs); err != nil {
		return err
	}
	return s.insert(ctx, op, collection, collection, cols, rows)
}

// Upsert merges rows into the collection on its primary key and swaps the
// merged table in with Replace. MergeTree keeps no unique keys of its own.
func (s *CHEntityStore) Upsert(ctx context.Context, collection string, rows []models.Row) error {
	const op = "clickhouse_store.upsert"
	if len(rows) == 0 {
		return nil
	}
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
	return s.Replace(ctx, collection, merged)
}

// Replace loads rows into a staging table and exchanges it with the
// collection, so readers see either the old rows or the new ones.
func (s *CHEntityStore) Replace(ctx context.Context, collection string, rows []models.Row) error {
	const op = "clickhouse_store.replace"
	table, err := s.table(op, collection)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		if err := s.ch.InitSchema(ctx, []string{"TRUNCATE TABLE IF EXISTS " + table}); err != nil {
			return errs.Store(op, err)
		}
		return nil
	}
	staging, err := s.table(op, collection+"_staging")
	if err != nil {
		return err
	}
	cols := models.ColumnsOf(rows)
	defs, err := columnDefs(op, cols, rows)
	if err != nil {
		return err
	}

	if err := s.ch.InitSchema(ctx, []string{
		"DROP TABLE IF EXISTS " + staging,
		fmt.Sprintf("CREATE TABLE %s (%s) ENGINE = MergeTree ORDER BY tuple()", staging, defs),
	}); err != nil {
		return errs.Store(op, err)
	}
	if err := s.insert(ctx, op, collection, collection+"_staging", cols, rows); err != nil {
		return err
	}
	if err := s.ch.InitSchema(ctx, []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s AS %s", table, staging),
		fmt.Sprintf("EXCHANGE TABLES %s AND %s", staging, table),
		"DROP TABLE IF EXISTS " + staging,
	}); err != nil {
		return errs.Store(op, err)
	}
	s.ensured.Store(collection, true)

	if s.l != nil {
		s.l.Info("clickhouse collection replaced",
			applogger.String("collection", collection),
			applogger.Int("rows", len(rows)),
		)
	}
	return nil
}

// insert writes rows into target, a table in the store's database. The client quotes the names.
func (s *CHEntityStore) insert(ctx context.Context, op, collection, target string, cols []string, rows []models.Row) error {
	args := make([][]any, len(rows))
	for i, r := range rows {
		vals := make([]any, len(cols))
		for j, c := range cols {
			vals[j] = r.Get(c).Any()
		}
		args[i] = vals
	}
	if err := s.ch.InsertRows(ctx, s.database+"."+target, cols, args); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse write error",
				applogger.String("collection", collection),
				applogger.Int("rows", len(rows)),
				applogger.Error(err),
			)
		}
		return errs.Store(op, err)
	}
	return nil
}

func (s *CHEntityStore) ensureTable(ctx context.Context, op, collection, defs string) error {
	if _, ok := s.ensured.Load(collection); ok {
		return nil
	}
	table, err := s.table(op, collection)
	if err != nil {
		return err
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) ENGINE = MergeTree ORDER BY tuple()", table, defs)
	if err := s.ch.InitSchema(ctx, []string{ddl}); err != nil {
		return errs.Store(op, err)
	}
	s.ensured.Store(collection, true)
	return nil
}

// columnDefs renders quoted column definitions; a name that is not a plain identifier is rejected.
func columnDefs(op string, cols []string, rows []models.Row) (string, error) {
	defs := make([]string, len(cols))
	for i, c := range cols {
		q, err := pkgch.Ident(c)
		if err != nil {
			return "", errs.InvalidRequest(op, "%v", err)
		}
		defs[i] = q + " " + columnType(c, rows)
	}
	return strings.Join(defs, ", "), nil
}

// columnType picks the ClickHouse type from the first non-null value of col.
func columnType(col string, rows []models.Row) string {
	for _, r := range rows {
		switch r.Get(col).Kind {
		case models.KindNumber:
			return "Nullable(Float64)"
		case models.KindString:
			return "Nullable(String)"
		case models.KindTime:
			return "Nullable(DateTime64(3))"
		}
	}
	return "Nullable(String)"
}

// Health pings the server.
func (s *CHEntityStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

// Close leaves the pool to its owner.
func (s *CHEntityStore) Close() error { return nil }

var _ domrepo.EntityStore = (*CHEntityStore)(nil)
