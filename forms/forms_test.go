package forms

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coffeefarm/db"
	"coffeefarm/models"
)

// countingStore records calls and can fail writes.
type countingStore struct {
	db.Store
	calls int
	fail  error
}

func (s *countingStore) Insert(ctx context.Context, p db.Path, body any, opts ...db.WriteOption) (string, error) {
	s.calls++
	if s.fail != nil {
		return "", s.fail
	}
	return s.Store.Insert(ctx, p, body, opts...)
}

func (s *countingStore) Update(ctx context.Context, p db.Path, id string, body any, opts ...db.WriteOption) error {
	s.calls++
	if s.fail != nil {
		return s.fail
	}
	return s.Store.Update(ctx, p, id, body, opts...)
}

func (s *countingStore) Delete(ctx context.Context, p db.Path, id string) error {
	s.calls++
	if s.fail != nil {
		return s.fail
	}
	return s.Store.Delete(ctx, p, id)
}

func newStore() *countingStore {
	return &countingStore{Store: db.NewMemoryStore(nil, nil)}
}

var (
	loc = time.UTC
	now = time.Date(2024, 7, 20, 15, 0, 0, 0, loc)
)

func target(store db.Store, owner string) Target {
	return Target{Store: store, Namespace: "test", Owner: owner}
}

func immediate() Options { return Options{CloseDelay: -1} }

func list[T any, PT interface {
	*T
	SetID(string)
}](t *testing.T, store db.Store, kind models.Kind) []T {
	t.Helper()
	docs, err := store.List(context.Background(), db.Path{Namespace: "test", Owner: "u1", Kind: kind})
	require.NoError(t, err)
	return db.DecodeAll[T, PT](docs, nil)
}

func TestSubmitWithoutOwnerMakesNoCall(t *testing.T) {
	store := newStore()
	f := New[models.Plot, PlotDraft](PlotCodec{}, target(store, ""), Env{}, immediate())
	f.Open(nil)

	_, err := f.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNoOwner)
	assert.Equal(t, StatusNoOwner, f.Status())

	ok, err := f.Delete(context.Background(), "x", ConfirmFunc(func(string) bool { return true }))
	assert.ErrorIs(t, err, ErrNoOwner)
	assert.False(t, ok)
	assert.Equal(t, 0, store.calls)
}

func TestPlotInsertAndUpdate(t *testing.T) {
	store := newStore()
	f := New[models.Plot, PlotDraft](PlotCodec{}, target(store, "u1"), Env{}, immediate())

	f.Open(nil)
	f.Edit(func(d *PlotDraft) {
		d.Name = "C-01"
		d.AreaHectares = "5,5"
		d.PlantCount = "5000"
	})
	id, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Talhão adicionado com sucesso!", f.Status())
	assert.False(t, f.IsOpen())

	plots := list[models.Plot](t, store, models.KindPlots)
	require.Len(t, plots, 1)
	assert.Equal(t, 5.5, plots[0].AreaHectares)
	assert.Equal(t, 5000, plots[0].PlantCount)
	assert.Zero(t, plots[0].AltitudeMeters)

	f.Open(&plots[0])
	assert.Equal(t, Field("5.5"), f.Draft().AreaHectares)
	f.Edit(func(d *PlotDraft) { d.Cultivar = "Catuaí" })
	gotID, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.Equal(t, "Talhão atualizado com sucesso!", f.Status())

	plots = list[models.Plot](t, store, models.KindPlots)
	require.Len(t, plots, 1)
	assert.Equal(t, "Catuaí", plots[0].Cultivar)
}

func TestMalformedNumbersAreRejected(t *testing.T) {
	store := newStore()
	f := New[models.Plot, PlotDraft](PlotCodec{}, target(store, "u1"), Env{}, immediate())
	f.Open(nil)
	f.Edit(func(d *PlotDraft) {
		d.AreaHectares = "abc"
		d.PlantCount = "-3"
		d.PlantingYear = "2020.5"
	})

	_, err := f.Submit(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"areaHectares", "plantCount", "plantingYear"}, verr.Fields)
	assert.Equal(t, 0, store.calls)
	assert.True(t, f.IsOpen())
	assert.Contains(t, f.Status(), "areaHectares")
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   Field
		want float64
		ok   bool
	}{
		{"", 0, true},
		{"  ", 0, true},
		{"2.5", 2.5, true},
		{"2,5", 2.5, true},
		{"0", 0, true},
		{"-1", 0, false},
		{"1e3", 1000, true},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			got, ok := ParseNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFieldAcceptsStringOrNumber(t *testing.T) {
	var d PurchaseDraft
	require.NoError(t, json.Unmarshal([]byte(`{"quantity": 10, "price": "150.00", "unit": "sacos"}`), &d))
	assert.Equal(t, Field("10"), d.Quantity)
	assert.Equal(t, Field("150.00"), d.Price)

	require.NoError(t, json.Unmarshal([]byte(`{"quantity": null}`), &d))
	assert.Equal(t, Field(""), d.Quantity)
}

func TestStoreFailureKeepsDraft(t *testing.T) {
	store := newStore()
	store.fail = errors.New("permission denied")
	f := New[models.Employee, EmployeeDraft](EmployeeCodec{}, target(store, "u1"), Env{}, immediate())
	f.Open(nil)
	f.Edit(func(d *EmployeeDraft) { d.FullName = "João Silva" })

	_, err := f.Submit(context.Background())
	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "Erro ao salvar funcionário: permission denied", f.Status())
	assert.True(t, f.IsOpen())
	assert.Equal(t, "João Silva", f.Draft().FullName)
}

func TestCloseDelay(t *testing.T) {
	store := newStore()
	f := New[models.Employee, EmployeeDraft](EmployeeCodec{}, target(store, "u1"), Env{}, Options{CloseDelay: 30 * time.Millisecond})
	f.Open(nil)
	_, err := f.Submit(context.Background())
	require.NoError(t, err)

	assert.True(t, f.IsOpen())
	assert.Eventually(t, func() bool { return !f.IsOpen() }, time.Second, 5*time.Millisecond)
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	store := newStore()
	p := db.Path{Namespace: "test", Owner: "u1", Kind: models.KindPurchases}
	id, err := store.Store.Insert(context.Background(), p, models.Purchase{ProductName: "Adubo"})
	require.NoError(t, err)

	f := New[models.Purchase, PurchaseDraft](PurchaseCodec{}, target(store, "u1"), Env{}, immediate())

	var prompt string
	ok, err := f.Delete(context.Background(), id, ConfirmFunc(func(p string) bool { prompt = p; return false }))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "Tem certeza que deseja deletar esta compra?", prompt)
	ok, err = f.Delete(context.Background(), id, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, store.calls)

	ok, err = f.Delete(context.Background(), id, ConfirmFunc(func(string) bool { return true }))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Compra deletada com sucesso!", f.Status())
	assert.Empty(t, list[models.Purchase](t, store, models.KindPurchases))
}

func TestDeleteFailureStatus(t *testing.T) {
	store := newStore()
	store.fail = errors.New("unavailable")
	f := New[models.Recipe, RecipeDraft](RecipeCodec{}, target(store, "u1"), Env{}, immediate())

	ok, err := f.Delete(context.Background(), "r1", ConfirmFunc(func(string) bool { return true }))
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, "Erro ao deletar receita: unavailable", f.Status())
}

func TestRecipeDropsUnnamedProducts(t *testing.T) {
	store := newStore()
	f := New[models.Recipe, RecipeDraft](RecipeCodec{}, target(store, "u1"), Env{}, immediate())
	f.Open(nil)
	f.Edit(func(d *RecipeDraft) {
		d.Name = "Adubação de Verão"
		d.ServiceType = "Adubação"
		d.Products = []models.Product{
			{Name: "NPK 20-10-10", Dose: "150", Unit: "kg/ha"},
			{Name: "  ", Dose: "1", Unit: "L"},
			{},
		}
	})
	_, err := f.Submit(context.Background())
	require.NoError(t, err)

	recipes := list[models.Recipe](t, store, models.KindRecipes)
	require.Len(t, recipes, 1)
	assert.Equal(t, []models.Product{{Name: "NPK 20-10-10", Dose: "150", Unit: "kg/ha"}}, recipes[0].Products)
}

func TestTimestampedInsertKeepsCreatedAtOnUpdate(t *testing.T) {
	store := newStore()
	f := New[models.Purchase, PurchaseDraft](PurchaseCodec{}, target(store, "u1"), Env{Loc: loc, Now: now}, immediate())
	f.Open(nil)
	assert.Equal(t, "2024-07-20", f.Draft().PurchaseDate)
	_, err := f.Submit(context.Background())
	require.NoError(t, err)

	purchases := list[models.Purchase](t, store, models.KindPurchases)
	require.Len(t, purchases, 1)
	created := purchases[0].CreatedAt
	require.NotNil(t, created)

	f.Open(&purchases[0])
	f.Edit(func(d *PurchaseDraft) { d.Quantity = "3" })
	_, err = f.Submit(context.Background())
	require.NoError(t, err)

	purchases = list[models.Purchase](t, store, models.KindPurchases)
	require.NotNil(t, purchases[0].CreatedAt)
	assert.True(t, created.Equal(*purchases[0].CreatedAt))
	assert.Equal(t, 3.0, purchases[0].Quantity)
}

func TestHarvestDefaultsAndNameResolution(t *testing.T) {
	env := Env{
		Now:       now,
		Loc:       loc,
		Plots:     []models.Plot{{ID: "p1", Name: "C-01"}, {ID: "p2", Name: "C-02"}},
		Employees: []models.Employee{{ID: "e1", FullName: "João Silva"}},
	}
	store := newStore()
	f := New[models.HarvestRecord, HarvestDraft](HarvestCodec{}, target(store, "u1"), env, immediate())
	f.Open(nil)

	d := f.Draft()
	assert.Equal(t, "p1", d.PlotID)
	assert.Equal(t, "e1", d.EmployeeID)
	assert.Equal(t, "2024-07-20", d.Date)

	f.Edit(func(d *HarvestDraft) {
		d.PlotID = "p2"
		d.PlotName = "stale"
		d.Liters = "120"
		d.BushelsAlqueires = "2"
		d.PricePerUnit = "10"
	})
	_, err := f.Submit(context.Background())
	require.NoError(t, err)

	hs := list[models.HarvestRecord](t, store, models.KindHarvests)
	require.Len(t, hs, 1)
	assert.Equal(t, "C-02", hs[0].PlotName)
	assert.Equal(t, "João Silva", hs[0].EmployeeName)
	require.NotNil(t, hs[0].Date)
	assert.True(t, time.Date(2024, 7, 20, 0, 0, 0, 0, loc).Equal(*hs[0].Date))
}

func TestBadDateIsRejected(t *testing.T) {
	store := newStore()
	f := NewActivityForm(target(store, "u1"), Env{Loc: loc, Now: now}, immediate())
	f.Open(nil)
	f.Edit(func(d *ActivityDraft) { d.Date = "20/07/2024" })

	_, err := f.Submit(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"date"}, verr.Fields)
	assert.Equal(t, 0, store.calls)
}

func TestPlotRenameRewritesDependents(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	pp := db.Path{Namespace: "test", Owner: "u1", Kind: models.KindPlots}
	plotID, err := store.Store.Insert(ctx, pp, models.Plot{Name: "C-01"})
	require.NoError(t, err)
	ap := db.Path{Namespace: "test", Owner: "u1", Kind: models.KindActivities}
	_, err = store.Store.Insert(ctx, ap, models.Activity{PlotID: plotID, PlotName: "C-01"})
	require.NoError(t, err)

	f := New[models.Plot, PlotDraft](PlotCodec{}, target(store, "u1"), Env{}, immediate())
	f.Open(&models.Plot{ID: plotID, Name: "C-01"})
	f.Edit(func(d *PlotDraft) { d.Name = "C-01 Norte" })
	_, err = f.Submit(ctx)
	require.NoError(t, err)

	acts := list[models.Activity](t, store, models.KindActivities)
	require.Len(t, acts, 1)
	assert.Equal(t, "C-01 Norte", acts[0].PlotName)
}

// kindFailStore fails updates of one kind.
type kindFailStore struct {
	db.Store
	kind models.Kind
	fail error
}

func (s *kindFailStore) Update(ctx context.Context, p db.Path, id string, body any, opts ...db.WriteOption) error {
	if p.Kind == s.kind && s.fail != nil {
		return s.fail
	}
	return s.Store.Update(ctx, p, id, body, opts...)
}

func TestPlotRenameKeepsPlotWhenDependentsFail(t *testing.T) {
	ctx := context.Background()
	store := &kindFailStore{Store: db.NewMemoryStore(nil, nil), kind: models.KindActivities, fail: errors.New("boom")}
	pp := db.Path{Namespace: "test", Owner: "u1", Kind: models.KindPlots}
	plotID, err := store.Insert(ctx, pp, models.Plot{Name: "C-01"})
	require.NoError(t, err)
	ap := db.Path{Namespace: "test", Owner: "u1", Kind: models.KindActivities}
	_, err = store.Insert(ctx, ap, models.Activity{PlotID: plotID, PlotName: "C-01"})
	require.NoError(t, err)

	f := New[models.Plot, PlotDraft](PlotCodec{}, target(store, "u1"), Env{}, immediate())
	f.Open(&models.Plot{ID: plotID, Name: "C-01"})
	f.Edit(func(d *PlotDraft) { d.Name = "C-02" })

	_, err = f.Submit(ctx)
	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, f.Status(), werr.Status)
	assert.True(t, f.IsOpen())

	plots := list[models.Plot](t, store, models.KindPlots)
	require.Len(t, plots, 1)
	assert.Equal(t, "C-01", plots[0].Name)

	// retrying once the store recovers completes the rename
	store.fail = nil
	_, err = f.Submit(ctx)
	require.NoError(t, err)

	plots = list[models.Plot](t, store, models.KindPlots)
	assert.Equal(t, "C-02", plots[0].Name)
	acts := list[models.Activity](t, store, models.KindActivities)
	require.Len(t, acts, 1)
	assert.Equal(t, "C-02", acts[0].PlotName)
}
