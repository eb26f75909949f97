package reports

import (
	"bytes"
	"context"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"coffeefarm/models"
	"coffeefarm/views"
)

func prepared(t *testing.T, opts Options) *Exporter {
	t.Helper()
	e := NewExporter(opts)
	e.Prepare(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx))
	require.True(t, e.Ready())
	return e
}

func sampleActivities() []models.Activity {
	d := time.Date(2024, 7, 20, 0, 0, 0, 0, time.UTC)
	return []models.Activity{
		{ID: "a1", PlotName: "C-01", Date: &d, ServiceType: "Adubação",
			Products: []models.Product{{Name: "Fertilizante X", Dose: "100", Unit: "kg"}}, Note: "Adubação de rotina"},
		{ID: "a2", PlotName: "C-01", ServiceType: "Foliar", Note: "sem data"},
	}
}

func TestActivitiesPDFRefusesBeforePrepare(t *testing.T) {
	e := NewExporter(Options{Loc: time.UTC})
	var buf bytes.Buffer
	err := e.ActivitiesPDF(&buf, sampleActivities(), "", views.ActivityFilter{}, time.Now())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Zero(t, buf.Len())
	assert.Contains(t, ErrNotReady.Error(), "tente novamente")
}

func TestActivitiesPDF(t *testing.T) {
	e := prepared(t, Options{Loc: time.UTC, PublicURL: "https://farm.example"})

	var buf bytes.Buffer
	err := e.ActivitiesPDF(&buf, sampleActivities(), "C-01", views.ActivityFilter{PlotID: "p1"}, time.Now())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}

func TestActivitiesPDFManyRowsPaginates(t *testing.T) {
	e := prepared(t, Options{Loc: time.UTC})
	var acts []models.Activity
	for i := 0; i < 120; i++ {
		acts = append(acts, sampleActivities()[0])
	}
	var buf bytes.Buffer
	require.NoError(t, e.ActivitiesPDF(&buf, acts, "", views.ActivityFilter{}, time.Now()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}

func TestPrepareWithLogoFile(t *testing.T) {
	logo := filepath.Join(t.TempDir(), "logo.png")
	require.NoError(t, imaging.Save(imaging.New(400, 400, color.White), logo))

	e := prepared(t, Options{LogoPath: logo, Loc: time.UTC})
	png, err := e.assets()
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(png))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
}

func TestPrepareMissingLogo(t *testing.T) {
	e := NewExporter(Options{LogoPath: "/does/not/exist.png"})
	e.Prepare(context.Background())
	assert.Error(t, e.Wait(context.Background()))
	assert.False(t, e.Ready())
}

func TestActivitiesFilename(t *testing.T) {
	now := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "Relatorio_Atividades_Todos os Talhões_04-03-2025.pdf", ActivitiesFilename("", now))
	assert.Equal(t, "Relatorio_Atividades_C-01_04-03-2025.pdf", ActivitiesFilename("C-01", now))
	assert.Equal(t, "Relatorio_Atividades_A_B_04-03-2025.pdf", ActivitiesFilename("A/B", now))
	assert.Equal(t, "Producao_04-03-2025.xlsx", ProductionFilename(now))
}

func TestProductionXLSX(t *testing.T) {
	e := NewExporter(Options{Loc: time.UTC})
	d := time.Date(2024, 7, 20, 0, 0, 0, 0, time.UTC)
	records := []models.HarvestRecord{
		{PlotName: "C-01", EmployeeName: "João Silva", BushelsAlqueires: 2, Liters: 120, PricePerUnit: 10, Date: &d},
	}

	var buf bytes.Buffer
	require.NoError(t, e.ProductionXLSX(&buf, records, views.Production(records)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue(productionSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Data", v)
	v, _ = f.GetCellValue(productionSheet, "A2")
	assert.Equal(t, "20/07/2024", v)
	v, _ = f.GetCellValue(productionSheet, "C2")
	assert.Equal(t, "João Silva", v)
	v, _ = f.GetCellValue(productionSheet, "A6")
	assert.Equal(t, "Produção Total (Alqueires Consolidados)", v)
	v, _ = f.GetCellValue(productionSheet, "B7")
	assert.Equal(t, "40", v)
}
