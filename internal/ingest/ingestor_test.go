package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchstack/switchstack-api/internal/repository"
)

type memDevice struct {
	id       uint64
	declared int
	states   []bool
}

type memStore struct {
	mu          sync.Mutex
	devices     map[string]*memDevice
	layoutCalls int
	failLayout  error
}

func newMemStore() *memStore { return &memStore{devices: map[string]*memDevice{}} }

func (m *memStore) add(espID string, pk uint64, n int) {
	m.devices[espID] = &memDevice{id: pk, declared: n, states: make([]bool, n)}
}

func (m *memStore) Layout(_ context.Context, espID string) (repository.Layout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layoutCalls++
	if m.failLayout != nil {
		return repository.Layout{}, m.failLayout
	}
	d, ok := m.devices[espID]
	if !ok {
		return repository.Layout{}, repository.ErrNotFound
	}
	return repository.Layout{ID: d.id, SwitchCount: len(d.states), NoOfSwitches: d.declared}, nil
}

func (m *memStore) SetStateAt(_ context.Context, espPK uint64, position int, state bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.id == espPK && position < len(d.states) {
			d.states[position] = state
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memStore) states(espID string) []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.devices[espID].states...)
}

type userSet map[uint64]bool

func (u userSet) Exists(_ context.Context, id uint64) (bool, error) {
	if id == 0 {
		return false, errors.New("db down")
	}
	return u[id], nil
}

func (in *Ingestor) parked() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.pending)
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestIngest_TogglesAddressedSwitchOnly(t *testing.T) {
	store := newMemStore()
	store.add("esp-A", 1, 4)
	in := New(store, nil, Options{}, quietLogger())
	ctx := context.Background()

	in.Ingest(ctx, "esp-A:2?1")
	assert.Equal(t, []bool{false, false, true, false}, store.states("esp-A"))

	in.Ingest(ctx, "esp-A:2?0")
	assert.Equal(t, []bool{false, false, false, false}, store.states("esp-A"))
}

func TestIngest_DropsUnaddressableInput(t *testing.T) {
	store := newMemStore()
	store.add("esp-A", 1, 3)
	in := New(store, nil, Options{}, quietLogger())
	ctx := context.Background()

	for _, raw := range []string{
		"esp-A:3?1",  // one past the end
		"esp-A:40?1", // far out of range
		"esp-Z:0?1",  // unknown device
		"esp-A:r?1",  // report marker
		"garbage",
		"esp-A:x?1",
		"",
	} {
		assert.NotPanics(t, func() { in.Ingest(ctx, raw) }, raw)
	}
	assert.Equal(t, []bool{false, false, false}, store.states("esp-A"))
}

func TestIngest_StoreFailureIsSwallowed(t *testing.T) {
	store := newMemStore()
	store.add("esp-A", 1, 2)
	store.failLayout = errors.New("connection refused")
	in := New(store, nil, Options{}, quietLogger())

	assert.NotPanics(t, func() { in.Ingest(context.Background(), "esp-A:0?1") })
	assert.Equal(t, []bool{false, false}, store.states("esp-A"))
}

func TestIngest_CachesProvisionedLayout(t *testing.T) {
	store := newMemStore()
	store.add("esp-A", 1, 2)
	store.add("esp-B", 2, 2)
	store.devices["esp-B"].states = nil // claimed but not provisioned yet
	in := New(store, nil, Options{}, quietLogger())
	ctx := context.Background()

	in.Ingest(ctx, "esp-A:0?1")
	in.Ingest(ctx, "esp-A:1?1")
	assert.Equal(t, 1, store.layoutCalls)

	in.Ingest(ctx, "esp-B:0?1")
	in.Ingest(ctx, "esp-B:0?1")
	assert.Equal(t, 3, store.layoutCalls)
}

func TestIngest_OverBudgetLatestStateWins(t *testing.T) {
	store := newMemStore()
	store.add("esp-A", 1, 2)
	in := New(store, nil, Options{RatePerSecond: 20, Burst: 1}, quietLogger())
	ctx := context.Background()

	in.Ingest(ctx, "esp-A:0?1")
	in.Ingest(ctx, "esp-A:0?0") // over budget, parked
	in.Ingest(ctx, "esp-A:0?1")
	in.Ingest(ctx, "esp-A:0?0")
	assert.Equal(t, []bool{true, false}, store.states("esp-A"))

	require.Eventually(t, func() bool {
		return !store.states("esp-A")[0] && in.parked() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIngest_FlushWritesParkedStates(t *testing.T) {
	store := newMemStore()
	store.add("esp-A", 1, 2)
	store.add("esp-B", 2, 1)
	in := New(store, nil, Options{RatePerSecond: 0.001, Burst: 1}, quietLogger())
	ctx := context.Background()

	in.Ingest(ctx, "esp-A:0?1")
	in.Ingest(ctx, "esp-A:1?1") // parked behind the empty bucket
	in.Ingest(ctx, "esp-B:0?1") // other devices have their own bucket
	assert.Equal(t, []bool{true, false}, store.states("esp-A"))
	assert.Equal(t, []bool{true}, store.states("esp-B"))
	assert.Equal(t, 1, in.parked())

	in.Flush(ctx)
	assert.Equal(t, []bool{true, true}, store.states("esp-A"))
	assert.Equal(t, 0, in.parked())
}

func TestIngest_UnknownDevicesGetNoBucket(t *testing.T) {
	store := newMemStore()
	store.add("esp-A", 1, 1)
	in := New(store, nil, Options{}, quietLogger())
	ctx := context.Background()

	for _, id := range []string{"ghost-1", "ghost-2", "ghost-3"} {
		in.Ingest(ctx, id+":0?1")
	}
	in.Ingest(ctx, "esp-A:5?1") // out of range
	assert.Zero(t, in.limiters.ItemCount())

	in.Ingest(ctx, "esp-A:0?1")
	assert.Equal(t, 1, in.limiters.ItemCount())
}

func TestIngest_Concurrent(t *testing.T) {
	store := newMemStore()
	store.add("esp-A", 1, 8)
	in := New(store, nil, Options{RatePerSecond: 1000, Burst: 1000}, quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in.Ingest(context.Background(), FormatCommand("esp-A", i, i%2 == 0))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, []bool{true, false, true, false, true, false, true, false}, store.states("esp-A"))
}

func TestVerifyUser(t *testing.T) {
	in := New(newMemStore(), userSet{7: true}, Options{}, quietLogger())
	ctx := context.Background()

	assert.True(t, in.VerifyUser(ctx, 7))
	assert.False(t, in.VerifyUser(ctx, 8))
	assert.False(t, in.VerifyUser(ctx, 0)) // lookup error

	assert.False(t, New(newMemStore(), nil, Options{}, quietLogger()).VerifyUser(ctx, 7))
}
