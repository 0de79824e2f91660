package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	pkgch "InvSight/pkg/clickhouse"
	pkgkafka "InvSight/pkg/kafka"
)

func TestMemoryEntityStoreFetchReturnsCopy(t *testing.T) {
	s := NewMemoryEntityStore(models.NewEntityTable("products", "", nil, []models.Row{
		{"product_id": models.Num(1), "category": models.Str("tools")},
	}))

	got, err := s.Fetch(context.Background(), "products")
	require.NoError(t, err)
	assert.Equal(t, "product_id", got.PrimaryKey)
	got.Rows[0]["category"] = models.Str("changed")

	again, err := s.Fetch(context.Background(), "products")
	require.NoError(t, err)
	assert.Equal(t, "tools", again.Rows[0]["category"].Str)
}

func TestMemoryEntityStoreMissingCollection(t *testing.T) {
	_, err := NewMemoryEntityStore().Fetch(context.Background(), "users")
	assert.True(t, errs.Is(err, errs.KindSchemaMismatch))
}

func TestMemoryEntityStoreWriteAppends(t *testing.T) {
	s := NewMemoryEntityStore()
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "training_demand", []models.Row{{"x": models.Num(1)}}))
	require.NoError(t, s.Write(ctx, "training_demand", []models.Row{{"x": models.Num(2), "y": models.Num(3)}}))

	got, err := s.Fetch(ctx, "training_demand")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
	assert.Equal(t, []string{"x", "y"}, got.Columns)

	assert.True(t, errs.Is(s.Write(ctx, "bad name", nil), errs.KindInvalidRequest))
}

func TestMemoryEntityStoreUpsertByPrimaryKey(t *testing.T) {
	s := NewMemoryEntityStore(models.NewEntityTable("products", "", nil, []models.Row{
		{"product_id": models.Num(1), "stock_level": models.Num(100), "category": models.Str("food")},
		{"product_id": models.Num(2), "stock_level": models.Num(0)},
	}))
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "products", []models.Row{
		{"product_id": models.Str("1"), "stock_level": models.Num(5)},
		{"product_id": models.Num(3), "stock_level": models.Num(7)},
	}))

	got, err := s.Fetch(ctx, "products")
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())
	assert.Equal(t, models.Num(5), got.Rows[0]["stock_level"])
	assert.Equal(t, models.Str("food"), got.Rows[0]["category"])
	assert.Equal(t, models.Num(3), got.Rows[2]["product_id"])

	err = s.Upsert(ctx, "products", []models.Row{{"stock_level": models.Num(1)}})
	assert.True(t, errs.Is(err, errs.KindInvalidRequest))
	err = s.Upsert(ctx, "scratch", []models.Row{{"x": models.Num(1)}})
	assert.True(t, errs.Is(err, errs.KindInvalidRequest), "no primary key to merge on")
}

func TestMemoryEntityStoreReplace(t *testing.T) {
	s := NewMemoryEntityStore()
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "training_demand", []models.Row{{"x": models.Num(1)}, {"x": models.Num(2)}}))
	require.NoError(t, s.Replace(ctx, "training_demand", []models.Row{{"y": models.Num(3)}}))

	got, err := s.Fetch(ctx, "training_demand")
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, []string{"y"}, got.Columns)
}

func TestCheckNewKeys(t *testing.T) {
	existing := []models.Row{{"product_id": models.Num(1)}}
	assert.NoError(t, CheckNewKeys("op", "products", "product_id", existing, []models.Row{{"product_id": models.Num(2)}}))
	assert.True(t, errs.Is(CheckNewKeys("op", "products", "product_id", existing,
		[]models.Row{{"product_id": models.Str("1")}}), errs.KindSchemaMismatch))
	assert.True(t, errs.Is(CheckNewKeys("op", "products", "product_id", nil,
		[]models.Row{{"product_id": models.Num(4)}, {"product_id": models.Num(4)}}), errs.KindSchemaMismatch))
}

func TestCSVEntityStoreParsesCells(t *testing.T) {
	dir := t.TempDir()
	body := "Product ID,Category,Price Per Unit,stock_level\n1,tools,9.5,\n002,garden,abc,4\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "products.csv"), []byte(body), 0o644))

	s := NewCSVEntityStore(dir)
	tbl, err := s.Fetch(context.Background(), "products")
	require.NoError(t, err)

	assert.Equal(t, []string{"product_id", "category", "price_per_unit", "stock_level"}, tbl.Columns)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, models.Num(1), tbl.Rows[0]["product_id"])
	assert.True(t, tbl.Rows[0]["stock_level"].IsNull())
	assert.Equal(t, models.Num(2), tbl.Rows[1]["product_id"])
	assert.Equal(t, models.Str("abc"), tbl.Rows[1]["price_per_unit"])
}

func TestCSVEntityStoreWriteThenFetch(t *testing.T) {
	dir := t.TempDir()
	s := NewCSVEntityStore(dir)
	ctx := context.Background()

	rows := []models.Row{
		{"b": models.Str("x"), "a": models.Num(1.5)},
		{"a": models.Num(2)},
	}
	require.NoError(t, s.Write(ctx, "training_pricing", rows))
	require.NoError(t, s.Write(ctx, "training_pricing", rows[:1]))

	tbl, err := s.Fetch(ctx, "training_pricing")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tbl.Columns)
	require.Equal(t, 3, tbl.Len())
	assert.True(t, tbl.Rows[1]["b"].IsNull())

	names, err := s.Collections()
	require.NoError(t, err)
	assert.Equal(t, []string{"training_pricing"}, names)
}

func TestCSVEntityStoreRejectsUnknownColumn(t *testing.T) {
	s := NewCSVEntityStore(t.TempDir())
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "training_demand", []models.Row{{"a": models.Num(1)}}))

	err := s.Write(ctx, "training_demand", []models.Row{{"a": models.Num(2), "z": models.Num(3)}})
	assert.True(t, errs.Is(err, errs.KindSchemaMismatch))

	tbl, err := s.Fetch(ctx, "training_demand")
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Len())
}

func TestCSVEntityStoreUpsertAndReplace(t *testing.T) {
	dir := t.TempDir()
	body := "product_id,stock_level\n1,100\n2,0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "products.csv"), []byte(body), 0o644))
	s := NewCSVEntityStore(dir)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "products", []models.Row{
		{"product_id": models.Num(1), "stock_level": models.Num(5), "category": models.Str("food")},
	}))
	tbl, err := s.Fetch(ctx, "products")
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, models.Num(5), tbl.Rows[0]["stock_level"])
	assert.Equal(t, models.Str("food"), tbl.Rows[0]["category"])
	assert.True(t, tbl.Rows[1]["category"].IsNull())

	require.NoError(t, s.Replace(ctx, "products", []models.Row{{"product_id": models.Num(9)}}))
	tbl, err = s.Fetch(ctx, "products")
	require.NoError(t, err)
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, []string{"product_id"}, tbl.Columns)

	names, err := s.Collections()
	require.NoError(t, err)
	assert.Equal(t, []string{"products"}, names)
}

func TestCSVEntityStoreMissingFile(t *testing.T) {
	_, err := NewCSVEntityStore(t.TempDir()).Fetch(context.Background(), "users")
	assert.True(t, errs.Is(err, errs.KindSchemaMismatch))
}

func TestCHEntityStoreRejectsUnsafeIdentifiers(t *testing.T) {
	ctx := context.Background()
	s := NewCHEntityStore(&pkgch.Client{}, "invsight")

	err := s.Write(ctx, "products", []models.Row{
		{"product_id": models.Num(1), "x Nullable(String)) ENGINE = Log; DROP TABLE products --": models.Num(2)},
	})
	assert.True(t, errs.Is(err, errs.KindInvalidRequest))

	err = s.Replace(ctx, "products", []models.Row{{"a`b": models.Num(1)}})
	assert.True(t, errs.Is(err, errs.KindInvalidRequest))

	_, err = NewCHEntityStore(&pkgch.Client{}, "invsight; DROP DATABASE x").Fetch(ctx, "products")
	assert.True(t, errs.Is(err, errs.KindInvalidRequest))
}

func TestFSArtifactSourceStaysInRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte("artifacts: []"), 0o644))
	s := NewFSArtifactSource(dir)

	b, err := s.ReadObject(context.Background(), "manifest.yaml")
	require.NoError(t, err)
	assert.Equal(t, "artifacts: []", string(b))

	_, err = s.ReadObject(context.Background(), "../../etc/passwd")
	assert.Error(t, err)
}

type recordingWriter struct {
	topic string
	msgs  []pkgkafka.Message
	err   error
}

func (w *recordingWriter) PublishBatch(_ context.Context, topic string, m []pkgkafka.Message) error {
	w.topic = topic
	w.msgs = append(w.msgs, m...)
	return w.err
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaResultPublisherKeysBySubject(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaResultPublisher{producer: w, topic: "predictions"}

	err := p.PublishBatch(context.Background(), []*models.PredictionResult{
		{RequestID: "r1", Role: models.RoleDemand, Subject: "42"},
		{RequestID: "r2", Role: models.RolePricing},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "predictions", w.topic)
	assert.Equal(t, "42", string(w.msgs[0].Key))
	assert.Equal(t, "pricing", string(w.msgs[1].Key))
	assert.Equal(t, "r1", w.msgs[0].Headers[pkgkafka.TraceHeader])
}

func TestKafkaResultPublisherWrapsErrors(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := &KafkaResultPublisher{producer: w, topic: "predictions"}
	err := p.Publish(context.Background(), &models.PredictionResult{RequestID: "r"})
	assert.True(t, errs.Is(err, errs.KindStoreUnavailable))
}
