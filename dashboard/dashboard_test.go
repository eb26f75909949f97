package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coffeefarm/appstate"
	"coffeefarm/db"
	"coffeefarm/globals"
	"coffeefarm/records"
	"coffeefarm/reports"
	"coffeefarm/views"
)

var fixedNow = time.Date(2024, 7, 20, 9, 0, 0, 0, time.UTC)

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setup(t *testing.T) (*httprouter.Router, *reports.Exporter) {
	t.Helper()
	store := db.NewMemoryStore(nil, nil)
	manager := appstate.NewManager(store, "test", 0, nil, nil)
	t.Cleanup(manager.Close)

	exporter := reports.NewExporter(reports.Options{Loc: time.UTC})
	h := &Handlers{
		Deps:     &records.Deps{States: manager, Loc: time.UTC, Now: func() time.Time { return fixedNow }},
		Exporter: exporter,
	}
	router := httprouter.New()
	Register(router, h, func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			next(w, r.WithContext(context.WithValue(r.Context(), globals.UserIDKey, "u1")), ps)
		}
	})
	return router, exporter
}

func call(t *testing.T, router http.Handler, method, url string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, url, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if v != nil {
		require.NoError(t, json.Unmarshal(env.Data, v))
	}
	return env
}

func TestSeedOnceThenDashboard(t *testing.T) {
	router, _ := setup(t)

	rec := call(t, router, http.MethodPost, "/api/setup/examples")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = call(t, router, http.MethodPost, "/api/setup/examples")
	require.Equal(t, http.StatusOK, rec.Code)
	var again struct {
		AlreadySeeded bool `json:"alreadySeeded"`
	}
	decode(t, rec, &again)
	assert.True(t, again.AlreadySeeded)

	rec = call(t, router, http.MethodGet, "/api/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	var dash views.DashboardView
	decode(t, rec, &dash)
	assert.Equal(t, 1, dash.PlotCount)
	assert.Equal(t, 5.0, dash.TotalArea)
	assert.Equal(t, 5000, dash.TotalPlants)
	assert.Equal(t, map[string]int{"Adubação": 1}, dash.ServiceHistogram)
	assert.Len(t, dash.Latest, 1)
}

func TestActivityListWindow(t *testing.T) {
	router, _ := setup(t)
	require.Equal(t, http.StatusCreated, call(t, router, http.MethodPost, "/api/setup/examples").Code)

	var list struct {
		Filter     views.ActivityFilter `json:"filter"`
		Activities []json.RawMessage    `json:"activities"`
	}
	rec := call(t, router, http.MethodGet, "/api/activities-list")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &list)
	assert.Equal(t, "2023-07-01", list.Filter.Start)
	assert.Equal(t, "2024-06-30", list.Filter.End)
	assert.Empty(t, list.Activities, "the seeded activity is dated after the crop year")

	rec = call(t, router, http.MethodGet, "/api/activities-list?start=2024-07-01&end=2024-07-31")
	decode(t, rec, &list)
	assert.Len(t, list.Activities, 1)

	rec = call(t, router, http.MethodGet, "/api/activities-list?all=true")
	decode(t, rec, &list)
	assert.Len(t, list.Activities, 1)
}

func TestActivityListRejectsMalformedBounds(t *testing.T) {
	router, _ := setup(t)

	rec := call(t, router, http.MethodGet, "/api/activities-list?start=20/07/2024")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var fields struct {
		Fields []string `json:"fields"`
	}
	decode(t, rec, &fields)
	assert.Equal(t, []string{"start"}, fields.Fields)

	rec = call(t, router, http.MethodGet, "/api/activities-list?start=2024-07-01&end=tomorrow")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = call(t, router, http.MethodGet, "/api/reports/activities.pdf?end=2024-13-01")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestProductionTotals(t *testing.T) {
	router, _ := setup(t)
	require.Equal(t, http.StatusCreated, call(t, router, http.MethodPost, "/api/setup/examples").Code)

	rec := call(t, router, http.MethodGet, "/api/production")
	require.Equal(t, http.StatusOK, rec.Code)
	var prod struct {
		Totals views.ProductionTotals `json:"totals"`
	}
	decode(t, rec, &prod)
	assert.Equal(t, 1, prod.Totals.Records)
	assert.Equal(t, 500.0, prod.Totals.TotalLiters)
	assert.InDelta(t, 2.5+500.0/60, prod.Totals.TotalBushels, 1e-9)
	assert.InDelta(t, (2.5+500.0/60)*5, prod.Totals.TotalValue, 1e-9)

	rec = call(t, router, http.MethodGet, "/api/production?employeeId=nobody")
	decode(t, rec, &prod)
	assert.Equal(t, 0, prod.Totals.Records)
}

func TestPDFWaitsForAssets(t *testing.T) {
	router, exporter := setup(t)

	rec := call(t, router, http.MethodGet, "/api/reports/status")
	assert.Contains(t, rec.Body.String(), `"ready":false`)

	rec = call(t, router, http.MethodGet, "/api/reports/activities.pdf")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "tente novamente")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exporter.Prepare(ctx)
	require.NoError(t, exporter.Wait(ctx))

	rec = call(t, router, http.MethodGet, "/api/reports/activities.pdf?all=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Relatorio_Atividades_Todos os Talhões_20-07-2024.pdf")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
}

func TestProductionSpreadsheet(t *testing.T) {
	router, _ := setup(t)
	rec := call(t, router, http.MethodGet, "/api/reports/production.xlsx")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Producao_20-07-2024.xlsx")
	// xlsx files are zip archives
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"))
}
