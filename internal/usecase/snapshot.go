package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	domrepo "InvSight/internal/domain/repository"
	"InvSight/internal/services/reconcile"
	applogger "InvSight/pkg/logger"
)

// Snapshot is an immutable reconciled view of the entity store.
type Snapshot struct {
	Version string
	BuiltAt time.Time
	Frame   *models.ReconciledFrame
	Tables  map[string]*models.EntityTable

	fact      string
	bySubject map[string][]int
}

// SubjectRows returns the frame rows of one subject ordered by timestamp.
func (s *Snapshot) SubjectRows(subject string) []models.Row {
	if s == nil {
		return nil
	}
	key, ok := reconcile.CanonicalKey(reconcile.CoerceKey(models.Str(subject)))
	if !ok {
		return nil
	}
	idx := s.bySubject[key]
	out := make([]models.Row, len(idx))
	for i, j := range idx {
		out[i] = s.Frame.Rows[j]
	}
	return out
}

// SubjectFacts returns the raw fact rows of one subject ordered by timestamp.
func (s *Snapshot) SubjectFacts(subject string) []models.Row {
	if s == nil {
		return nil
	}
	fact, ok := s.Tables[s.fact]
	if !ok || fact == nil {
		return nil
	}
	key, ok := reconcile.CanonicalKey(reconcile.CoerceKey(models.Str(subject)))
	if !ok {
		return nil
	}
	idx := s.bySubject[key]
	out := make([]models.Row, 0, len(idx))
	for _, j := range idx {
		if j < len(fact.Rows) {
			out = append(out, fact.Rows[j])
		}
	}
	return out
}

// Subjects lists the subjects present in the snapshot.
func (s *Snapshot) Subjects() []string {
	out := make([]string, 0, len(s.bySubject))
	for k := range s.bySubject {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Dimensions returns the joined tables without the fact table.
func (s *Snapshot) Dimensions() map[string]*models.EntityTable {
	out := make(map[string]*models.EntityTable, len(s.Tables))
	for k, v := range s.Tables {
		if k != s.fact {
			out[k] = v
		}
	}
	return out
}

// SnapshotInfo is the public summary of a snapshot.
type SnapshotInfo struct {
	Version  string         `json:"version"`
	BuiltAt  time.Time      `json:"built_at"`
	Rows     int            `json:"rows"`
	Columns  int            `json:"columns"`
	Subjects int            `json:"subjects"`
	Tables   map[string]int `json:"tables"`
}

func (s *Snapshot) Info() SnapshotInfo {
	info := SnapshotInfo{
		Version:  s.Version,
		BuiltAt:  s.BuiltAt,
		Rows:     s.Frame.Len(),
		Columns:  len(s.Frame.Columns),
		Subjects: len(s.bySubject),
		Tables:   make(map[string]int, len(s.Tables)),
	}
	for k, t := range s.Tables {
		info.Tables[k] = t.Len()
	}
	return info
}

// SnapshotManager builds snapshots from the entity store and swaps them in
// atomically. Concurrent refreshes collapse into one build.
type SnapshotManager struct {
	store        domrepo.EntityStore
	engine       *reconcile.Engine
	metrics      domrepo.Metrics
	fetchTimeout time.Duration

	cur   atomic.Pointer[Snapshot]
	group singleflight.Group

	mu     sync.Mutex
	onSwap []func(*Snapshot)
	l      *applogger.Logger
}

type SnapshotOption func(*SnapshotManager)

// WithFetchTimeout bounds each collection fetch.
func WithFetchTimeout(d time.Duration) SnapshotOption {
	return func(m *SnapshotManager) {
		if d > 0 {
			m.fetchTimeout = d
		}
	}
}

func NewSnapshotManager(store domrepo.EntityStore, engine *reconcile.Engine, metrics domrepo.Metrics, opts ...SnapshotOption) *SnapshotManager {
	m := &SnapshotManager{
		store:        store,
		engine:       engine,
		metrics:      metrics,
		fetchTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *SnapshotManager) SetLogger(l *applogger.Logger) { m.l = l }

// OnSwap registers fn to run after every successful swap.
func (m *SnapshotManager) OnSwap(fn func(*Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSwap = append(m.onSwap, fn)
}

// Current returns the active snapshot, nil before the first build.
func (m *SnapshotManager) Current() *Snapshot { return m.cur.Load() }

// Ensure returns the active snapshot, building one if none exists.
func (m *SnapshotManager) Ensure(ctx context.Context) (*Snapshot, error) {
	if s := m.cur.Load(); s != nil {
		return s, nil
	}
	return m.Refresh(ctx)
}

// Refresh builds a new snapshot and swaps it in. The previous snapshot stays
// active when the build fails.
func (m *SnapshotManager) Refresh(ctx context.Context) (*Snapshot, error) {
	ch := m.group.DoChan("refresh", func() (interface{}, error) {
		// detached so one caller giving up does not fail the shared build
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*m.fetchTimeout)
		defer cancel()
		return m.build(bctx)
	})
	select {
	case <-ctx.Done():
		return nil, errs.Store("snapshot.refresh", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (m *SnapshotManager) build(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	plan := m.engine.Plan()

	var mu sync.Mutex
	tables := make(map[string]*models.EntityTable, len(plan.Collections()))
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range plan.Collections() {
		name := name
		g.Go(func() error {
			t, err := m.fetch(gctx, name, name != plan.Fact)
			if err != nil {
				return err
			}
			mu.Lock()
			tables[name] = t
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.fail(err)
		return nil, err
	}

	frame, err := m.engine.Reconcile(tables)
	if err != nil {
		m.fail(err)
		return nil, err
	}

	snap := &Snapshot{
		Version:   uuid.NewString(),
		BuiltAt:   time.Now().UTC(),
		Frame:     frame,
		Tables:    tables,
		fact:      plan.Fact,
		bySubject: indexSubjects(frame, plan.Subject, plan.Timestamp),
	}
	prev := m.cur.Swap(snap)

	elapsed := time.Since(start)
	m.metrics.RecordSnapshot(frame.Len(), elapsed.Seconds())
	if m.l != nil {
		prevVersion := ""
		if prev != nil {
			prevVersion = prev.Version
		}
		m.l.Info("snapshot swapped",
			applogger.String("version", snap.Version),
			applogger.String("previous", prevVersion),
			applogger.Int("rows", frame.Len()),
			applogger.Int("subjects", len(snap.bySubject)),
			applogger.Duration("duration_ms", elapsed))
	}

	m.mu.Lock()
	hooks := append([]func(*Snapshot){}, m.onSwap...)
	m.mu.Unlock()
	for _, fn := range hooks {
		fn(snap)
	}
	return snap, nil
}

// fetch loads one collection under the per-fetch timeout. Joined tables must
// have unique primary keys.
func (m *SnapshotManager) fetch(ctx context.Context, name string, joined bool) (*models.EntityTable, error) {
	const op = "snapshot.fetch"
	fctx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	t, err := m.store.Fetch(fctx, name)
	if err != nil {
		if errs.KindOf(err) != errs.KindUnknown {
			return nil, fmt.Errorf("fetch %s: %w", name, err)
		}
		if cerr := fctx.Err(); cerr != nil {
			err = errors.Join(cerr, err)
		}
		return nil, errs.Store(op, fmt.Errorf("fetch %s: %w", name, err))
	}
	if t == nil {
		return nil, errs.SchemaMismatch(op, "collection %s returned no table", name)
	}
	if joined && t.PrimaryKey != "" && t.HasColumn(t.PrimaryKey) {
		if err := t.ValidatePrimaryKey(); err != nil {
			return nil, errs.Wrap(errs.KindSchemaMismatch, op, err)
		}
	}
	return t, nil
}

func (m *SnapshotManager) fail(err error) {
	m.metrics.RecordError(string(errs.KindOf(err)))
	if m.l != nil {
		m.l.Error("snapshot build failed", applogger.Error(err))
	}
}

// indexSubjects groups frame row indexes by canonical subject key, each group
// ordered by timestamp with frame order breaking ties.
func indexSubjects(frame *models.ReconciledFrame, subject, ts string) map[string][]int {
	out := make(map[string][]int)
	if subject == "" {
		return out
	}
	times := make([]time.Time, len(frame.Rows))
	for i, r := range frame.Rows {
		k, ok := reconcile.CanonicalKey(r.Get(subject))
		if !ok {
			continue
		}
		out[k] = append(out[k], i)
		if ts != "" {
			times[i], _ = reconcile.ParseTimestamp(r.Get(ts))
		}
	}
	for _, idx := range out {
		sort.SliceStable(idx, func(a, b int) bool { return times[idx[a]].Before(times[idx[b]]) })
	}
	return out
}
