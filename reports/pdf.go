package reports

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"

	"coffeefarm/models"
	"coffeefarm/utils"
	"coffeefarm/views"
)

var columns = []struct {
	title string
	width float64
}{
	{"Data", 25},
	{"Talhão", 30},
	{"Serviço", 35},
	{"Produtos", 60},
	{"Observação", 40},
}

const (
	lineHeight  = 5.0
	cellPadding = 1.5
)

// ActivitiesPDF writes the activity report. acts should already be filtered
// and sorted; plotName empty means all plots.
func (e *Exporter) ActivitiesPDF(w io.Writer, acts []models.Activity, plotName string, filter views.ActivityFilter, now time.Time) error {
	logo, err := e.assets()
	if err != nil {
		return err
	}
	loc := e.opts.Loc
	if plotName == "" {
		plotName = AllPlots
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	imageOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("logo", imageOpts, bytes.NewReader(logo))
	pdf.ImageOptions("logo", 15, 10, 30, 15, false, imageOpts, 0, "")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Text(50, 20, tr("Relatório de Atividades da Fazenda"))
	pdf.SetFont("Helvetica", "", 12)
	pdf.Text(15, 42, tr("Talhão: "+plotName))
	pdf.Text(15, 49, tr("Data de Exportação: "+now.In(loc).Format("02/01/2006")))

	if e.opts.PublicURL != "" {
		png, err := qrcode.Encode(reportLink(e.opts.PublicURL, filter), qrcode.Medium, 256)
		if err != nil {
			return fmt.Errorf("encode qr: %w", err)
		}
		pdf.RegisterImageOptionsReader("qr", imageOpts, bytes.NewReader(png))
		pdf.ImageOptions("qr", 170, 10, 25, 25, false, imageOpts, 0, "")
	}

	pdf.SetXY(10, 60)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(int(logoColor.R), int(logoColor.G), int(logoColor.B))
	pdf.SetTextColor(255, 255, 255)
	for _, c := range columns {
		pdf.CellFormat(c.width, 8, tr(c.title), "", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(51, 51, 51)
	for i, a := range acts {
		row := []string{
			utils.DisplayDate(a.Date, loc, "Data inválida"),
			a.PlotName,
			a.ServiceType,
			models.ProductsLabel(a.Products),
			a.Note,
		}
		writeRow(pdf, tr, row, i%2 == 1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

// writeRow draws one wrapped table row; odd rows get the stripe fill.
func writeRow(pdf *gofpdf.Fpdf, tr func(string) string, cells []string, striped bool) {
	lines := 1
	texts := make([]string, len(cells))
	for i, c := range columns {
		texts[i] = tr(cells[i])
		if n := len(pdf.SplitLines([]byte(texts[i]), c.width-2*cellPadding)); n > lines {
			lines = n
		}
	}
	height := float64(lines)*lineHeight + 2*cellPadding

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	if pdf.GetY()+height > pageHeight-bottom {
		pdf.AddPage()
	}

	if striped {
		pdf.SetFillColor(245, 245, 245)
	} else {
		pdf.SetFillColor(255, 255, 255)
	}
	x, y := pdf.GetXY()
	for i, c := range columns {
		pdf.Rect(x, y, c.width, height, "F")
		pdf.SetXY(x+cellPadding, y+cellPadding)
		pdf.MultiCell(c.width-2*cellPadding, lineHeight, texts[i], "", "L", false)
		x += c.width
	}
	pdf.SetXY(10, y+height)
}

func reportLink(base string, f views.ActivityFilter) string {
	q := url.Values{}
	if f.PlotID != "" {
		q.Set("plotId", f.PlotID)
	}
	if f.Start != "" {
		q.Set("start", f.Start)
	}
	if f.End != "" {
		q.Set("end", f.End)
	}
	link := base + "/api/activities-list"
	if len(q) > 0 {
		link += "?" + q.Encode()
	}
	return link
}
