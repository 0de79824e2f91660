package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InvSight/internal/service/ratelimit"
	"InvSight/pkg/config"
)

func TestScheduleRegistersJobs(t *testing.T) {
	cfg := &config.Config{}
	cfg.Snapshot.RefreshCron = "0 */15 * * * *"
	a := New(cfg, Deps{Limiter: ratelimit.New(10, 10)})

	require.NoError(t, a.schedule(t.Context()))
	assert.Len(t, a.cron.Entries(), 2)
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	cfg := &config.Config{}
	cfg.Snapshot.RefreshCron = "every now and then"
	a := New(cfg, Deps{})

	assert.Error(t, a.schedule(t.Context()))
}

func TestCloseRunsClosersInOrder(t *testing.T) {
	var order []string
	closer := func(name string) Closer {
		return Closer{Name: name, Close: func() error {
			order = append(order, name)
			return nil
		}}
	}
	a := New(&config.Config{}, Deps{Closers: []Closer{closer("publisher"), closer("store")}})
	require.NoError(t, a.Close())
	assert.Equal(t, []string{"publisher", "store"}, order)
}
