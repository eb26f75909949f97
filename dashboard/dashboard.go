// Package dashboard serves the read-only views, the report exports and the
// example-data setup.
package dashboard

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"coffeefarm/forms"
	"coffeefarm/records"
	"coffeefarm/reports"
	"coffeefarm/seed"
	"coffeefarm/utils"
	"coffeefarm/views"
)

type Handlers struct {
	*records.Deps
	Exporter *reports.Exporter
}

func (h *Handlers) location() *time.Location {
	if h.Loc == nil {
		return time.Local
	}
	return h.Loc
}

func (h *Handlers) clock() time.Time {
	if h.Now != nil {
		return h.Now().In(h.location())
	}
	return time.Now().In(h.location())
}

// Register mounts the dashboard routes.
func Register(router *httprouter.Router, h *Handlers, wrap func(httprouter.Handle) httprouter.Handle) {
	router.GET("/api/snapshot", wrap(h.Snapshot))
	router.GET("/api/dashboard", wrap(h.Dashboard))
	router.GET("/api/activities-list", wrap(h.ActivityList))
	router.GET("/api/production", wrap(h.Production))
	router.GET("/api/reports/activities.pdf", wrap(h.ActivitiesPDF))
	router.GET("/api/reports/production.xlsx", wrap(h.ProductionXLSX))
	router.GET("/api/reports/status", h.ReportStatus)
	router.POST("/api/setup/examples", wrap(h.SeedExamples))
}

func (h *Handlers) Snapshot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s, release, err := h.Open(r)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	defer release()
	utils.SendResponse(w, http.StatusOK, s.State.Snapshot(), "", nil)
}

func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s, release, err := h.Open(r)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	defer release()
	utils.SendResponse(w, http.StatusOK, views.Dashboard(s.State.Snapshot()), "", nil)
}

// activityFilter reads plotId, start and end. Without start and end the
// crop-year window applies; all=true lifts it. A bound that is not a
// YYYY-MM-DD date is a *forms.ValidationError.
func (h *Handlers) activityFilter(r *http.Request) (views.ActivityFilter, error) {
	q := r.URL.Query()
	f := views.ActivityFilter{PlotID: q.Get("plotId"), Start: q.Get("start"), End: q.Get("end")}
	var bad []string
	if f.Start != "" && utils.ParseDate(f.Start, h.location()) == nil {
		bad = append(bad, "start")
	}
	if f.End != "" && utils.ParseDate(f.End, h.location()) == nil {
		bad = append(bad, "end")
	}
	if len(bad) > 0 {
		return f, &forms.ValidationError{Fields: bad}
	}
	if f.Start == "" && f.End == "" && q.Get("all") != "true" {
		window := views.DefaultActivityWindow(h.clock())
		f.Start, f.End = window.Start, window.End
	}
	return f, nil
}

type activityListResponse struct {
	Filter     views.ActivityFilter `json:"filter"`
	Activities any                  `json:"activities"`
}

func (h *Handlers) ActivityList(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s, release, err := h.Open(r)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	defer release()
	f, err := h.activityFilter(r)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	acts := views.ActivityList(s.State.Activities(), f, s.Env.Index(), h.location())
	utils.SendResponse(w, http.StatusOK, activityListResponse{Filter: f, Activities: acts}, "", nil)
}

type productionResponse struct {
	Filter  views.HarvestFilter    `json:"filter"`
	Records any                    `json:"records"`
	Totals  views.ProductionTotals `json:"totals"`
}

func harvestFilter(r *http.Request) views.HarvestFilter {
	q := r.URL.Query()
	return views.HarvestFilter{PlotID: q.Get("plotId"), EmployeeID: q.Get("employeeId")}
}

func (h *Handlers) Production(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s, release, err := h.Open(r)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	defer release()
	f := harvestFilter(r)
	recs := views.FilterHarvests(s.State.Harvests(), f, s.Env.Index())
	utils.SendResponse(w, http.StatusOK, productionResponse{Filter: f, Records: recs, Totals: views.Production(recs)}, "", nil)
}

// ReportStatus tells clients whether PDF exports are available yet.
func (h *Handlers) ReportStatus(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	utils.SendResponse(w, http.StatusOK, map[string]bool{"ready": h.Exporter.Ready()}, "", nil)
}

func attachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handlers) ActivitiesPDF(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s, release, err := h.Open(r)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	defer release()

	f, err := h.activityFilter(r)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	ix := s.Env.Index()
	plotName := ""
	if f.PlotID != "" {
		plotName = ix.PlotName(f.PlotID, "")
	}
	acts := views.ActivityList(s.State.Activities(), f, ix, h.location())
	now := h.clock()

	var buf bytes.Buffer
	err = h.Exporter.ActivitiesPDF(&buf, acts, plotName, f, now)
	h.Metrics.Export("pdf", err)
	if errors.Is(err, reports.ErrNotReady) {
		utils.SendResponse(w, http.StatusServiceUnavailable, nil, err.Error(), err)
		return
	}
	if err != nil {
		h.Log().Error("pdf export", zap.String("owner", s.Target.Owner), zap.Error(err))
		utils.SendResponse(w, http.StatusInternalServerError, nil, "Erro ao gerar PDF", err)
		return
	}
	attachment(w, "application/pdf", reports.ActivitiesFilename(plotName, now), buf.Bytes())
}

func (h *Handlers) ProductionXLSX(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s, release, err := h.Open(r)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	defer release()

	recs := views.FilterHarvests(s.State.Harvests(), harvestFilter(r), s.Env.Index())
	var buf bytes.Buffer
	err = h.Exporter.ProductionXLSX(&buf, recs, views.Production(recs))
	h.Metrics.Export("xlsx", err)
	if err != nil {
		h.Log().Error("xlsx export", zap.String("owner", s.Target.Owner), zap.Error(err))
		utils.SendResponse(w, http.StatusInternalServerError, nil, "Erro ao gerar planilha", err)
		return
	}
	attachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		reports.ProductionFilename(h.clock()), buf.Bytes())
}

// SeedExamples writes the example records once; ?force=true writes them
// again.
func (h *Handlers) SeedExamples(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s, release, err := h.Open(r)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	defer release()

	res, err := seed.Examples(r.Context(), s.Target.Store, s.Target.Namespace, s.Target.Owner, seed.Options{
		Force:  r.URL.Query().Get("force") == "true",
		Now:    h.clock(),
		Loc:    h.location(),
		Logger: h.Log(),
	})
	if err != nil {
		h.WriteError(w, err)
		return
	}
	code := http.StatusCreated
	if res.AlreadySeeded {
		code = http.StatusOK
	}
	utils.SendResponse(w, code, res, "", nil)
}
