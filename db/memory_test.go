package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"coffeefarm/models"
)

func testPath(kind models.Kind) Path {
	return NewPath("test-app", "user-1", kind)
}

// collect records snapshots delivered to a subscriber.
type collect struct {
	mu    sync.Mutex
	snaps []Snapshot
	ch    chan Snapshot
}

func newCollect() *collect {
	return &collect{ch: make(chan Snapshot, 16)}
}

func (c *collect) fn(s Snapshot) {
	c.mu.Lock()
	c.snaps = append(c.snaps, s)
	c.mu.Unlock()
	c.ch <- s
}

func (c *collect) next(t *testing.T) Snapshot {
	t.Helper()
	select {
	case s := <-c.ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for snapshot")
		return Snapshot{}
	}
}

func TestPathString(t *testing.T) {
	p := NewPath("my app/1", "uid", models.KindPlots)
	assert.Equal(t, "artifacts/my_app_1/users/uid/plots", p.String())
	assert.NoError(t, p.Validate())

	p.Owner = ""
	assert.ErrorIs(t, p.Validate(), ErrNoOwner)
}

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil, nil)
	p := testPath(models.KindPlots)

	id, err := store.Insert(ctx, p, models.Plot{Name: "C-01", AreaHectares: 5})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	docs, err := store.List(ctx, p)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	plot, err := Decode[models.Plot](docs[0])
	require.NoError(t, err)
	assert.Equal(t, id, plot.ID)
	assert.Equal(t, "C-01", plot.Name)

	require.NoError(t, store.Update(ctx, p, id, models.Plot{Name: "C-02"}))
	docs, _ = store.List(ctx, p)
	plot, _ = Decode[models.Plot](docs[0])
	assert.Equal(t, "C-02", plot.Name)

	assert.ErrorIs(t, store.Update(ctx, p, "missing", models.Plot{}), ErrNotFound)

	require.NoError(t, store.Delete(ctx, p, id))
	require.NoError(t, store.Delete(ctx, p, id))
	docs, _ = store.List(ctx, p)
	assert.Empty(t, docs)
}

func TestMemoryStoreKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil, nil)
	p := testPath(models.KindEmployees)

	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		id, err := store.Insert(ctx, p, models.Employee{FullName: name})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, store.Put(ctx, p, ids[1], models.Employee{FullName: "b2"}))

	docs, err := store.List(ctx, p)
	require.NoError(t, err)
	got := DecodeAll[models.Employee](docs, nil)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b2", "c"}, []string{got[0].FullName, got[1].FullName, got[2].FullName})
}

func TestMemoryStoreServerTimestamp(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil, nil)
	fixed := time.Date(2024, 7, 20, 10, 30, 0, 123456789, time.UTC)
	store.Now = func() time.Time { return fixed }
	p := testPath(models.KindHarvests)

	client := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	id, err := store.Insert(ctx, p, models.HarvestRecord{PlotName: "C-01", CreatedAt: &client}, WithServerTimestamp("createdAt"))
	require.NoError(t, err)

	docs, _ := store.List(ctx, p)
	h, err := Decode[models.HarvestRecord](docs[0])
	require.NoError(t, err)
	assert.Equal(t, id, h.ID)
	require.NotNil(t, h.CreatedAt)
	assert.True(t, fixed.Truncate(time.Millisecond).Equal(*h.CreatedAt))
}

func TestMemoryStoreRejectsMissingOwner(t *testing.T) {
	store := NewMemoryStore(nil, nil)
	p := NewPath("app", "", models.KindPlots)

	_, err := store.Insert(context.Background(), p, models.Plot{})
	assert.ErrorIs(t, err, ErrNoOwner)
	_, err = store.Subscribe(context.Background(), p, func(Snapshot) {})
	assert.ErrorIs(t, err, ErrNoOwner)
}

func TestMemoryStoreOwnersAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil, nil)
	a := NewPath("app", "alice", models.KindPlots)
	b := NewPath("app", "bob", models.KindPlots)

	_, err := store.Insert(ctx, a, models.Plot{Name: "A"})
	require.NoError(t, err)

	docs, err := store.List(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestMemoryStoreSubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := NewMemoryStore(nil, nil)
	p := testPath(models.KindPlots)
	_, err := store.Insert(ctx, p, models.Plot{Name: "first"})
	require.NoError(t, err)

	c := newCollect()
	sub, err := store.Subscribe(ctx, p, c.fn)
	require.NoError(t, err)

	initial := c.next(t)
	assert.Len(t, initial.Docs, 1)

	_, err = store.Insert(ctx, p, models.Plot{Name: "second"})
	require.NoError(t, err)

	// signals are coalesced, so wait for the snapshot that shows the write
	assert.Eventually(t, func() bool {
		select {
		case s := <-c.ch:
			return len(s.Docs) == 2
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	sub.Close()
	sub.Close()

	notifier := store.notifier.(*LocalNotifier)
	assert.Equal(t, 0, notifier.Listeners(p))
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	store := NewMemoryStore(nil, nil)
	p := testPath(models.KindRecipes)

	c := newCollect()
	sub, err := store.Subscribe(ctx, p, c.fn)
	require.NoError(t, err)
	initial := c.next(t)
	assert.Empty(t, initial.Docs)

	cancel()
	sub.Close()
}

func TestDecodeAllSkipsBadDocuments(t *testing.T) {
	good, err := encodeBody(models.Plot{Name: "ok"}, time.Now(), nil)
	require.NoError(t, err)
	docs := []Document{
		{ID: "1", Body: good},
		{ID: "2", Body: []byte{0x01}},
	}

	var failed []string
	plots := DecodeAll[models.Plot](docs, func(d Document, _ error) {
		failed = append(failed, d.ID)
	})
	require.Len(t, plots, 1)
	assert.Equal(t, "1", plots[0].ID)
	assert.Equal(t, []string{"2"}, failed)
}
