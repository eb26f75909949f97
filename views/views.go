// Package views derives the dashboard, list and production figures from a
// state snapshot. Everything here is pure.
package views

import (
	"slices"
	"time"

	"coffeefarm/appstate"
	"coffeefarm/globals"
	"coffeefarm/models"
	"coffeefarm/utils"
)

// LatestCount is how many recent activities the dashboard shows.
const LatestCount = 5

// LitersPerBushel converts liters to alqueires.
const LitersPerBushel = 60.0

type DashboardView struct {
	TotalArea        float64           `json:"totalArea"`
	TotalPlants      int               `json:"totalPlants"`
	PlotCount        int               `json:"plotCount"`
	ServiceHistogram map[string]int    `json:"serviceHistogram"`
	Latest           []models.Activity `json:"latest"`
}

func Dashboard(snap appstate.Snapshot) DashboardView {
	v := DashboardView{
		PlotCount:        len(snap.Plots),
		ServiceHistogram: make(map[string]int),
	}
	for _, p := range snap.Plots {
		v.TotalArea += p.AreaHectares
		v.TotalPlants += p.PlantCount
	}
	for _, a := range snap.Activities {
		if a.ServiceType != "" {
			v.ServiceHistogram[a.ServiceType]++
		}
	}
	latest := datedNewestFirst(snap.Activities)
	if len(latest) > LatestCount {
		latest = latest[:LatestCount]
	}
	v.Latest = latest
	return v
}

// datedNewestFirst drops undated activities and sorts the rest by date,
// newest first. Ties keep arrival order.
func datedNewestFirst(acts []models.Activity) []models.Activity {
	out := make([]models.Activity, 0, len(acts))
	for _, a := range acts {
		if a.Date != nil {
			out = append(out, a)
		}
	}
	slices.SortStableFunc(out, func(a, b models.Activity) int {
		return b.Date.Compare(*a.Date)
	})
	return out
}

// ActivityFilter narrows the activity list. Dates are YYYY-MM-DD; an empty
// bound is open.
type ActivityFilter struct {
	PlotID string `json:"plotId"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// DefaultActivityWindow is the crop year ending this June: 1 July of the
// previous year through 30 June of now's year.
func DefaultActivityWindow(now time.Time) ActivityFilter {
	y := now.Year()
	start := time.Date(y-1, time.July, 1, 0, 0, 0, 0, now.Location())
	end := time.Date(y, time.June, 30, 0, 0, 0, 0, now.Location())
	return ActivityFilter{Start: start.Format(globals.DateLayout), End: end.Format(globals.DateLayout)}
}

// FilterActivities keeps arrival order. Undated activities always pass the
// date window.
func FilterActivities(acts []models.Activity, f ActivityFilter, ix Index, loc *time.Location) []models.Activity {
	start := utils.ParseDate(f.Start, loc)
	var end *time.Time
	if e := utils.ParseDate(f.End, loc); e != nil {
		next := e.AddDate(0, 0, 1)
		end = &next
	}

	out := make([]models.Activity, 0, len(acts))
	for _, a := range acts {
		if f.PlotID != "" && !ix.RefersToPlot(f.PlotID, a.PlotID, a.PlotName) {
			continue
		}
		if a.Date != nil {
			if start != nil && a.Date.Before(*start) {
				continue
			}
			if end != nil && !a.Date.Before(*end) {
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

// ActivityList is the filtered list as shown and exported: dated activities
// only, newest first.
func ActivityList(acts []models.Activity, f ActivityFilter, ix Index, loc *time.Location) []models.Activity {
	return datedNewestFirst(FilterActivities(acts, f, ix, loc))
}

type HarvestFilter struct {
	PlotID     string `json:"plotId"`
	EmployeeID string `json:"employeeId"`
}

func FilterHarvests(records []models.HarvestRecord, f HarvestFilter, ix Index) []models.HarvestRecord {
	out := make([]models.HarvestRecord, 0, len(records))
	for _, h := range records {
		if f.PlotID != "" && !ix.RefersToPlot(f.PlotID, h.PlotID, h.PlotName) {
			continue
		}
		if f.EmployeeID != "" && !ix.RefersToEmployee(f.EmployeeID, h.EmployeeID, h.EmployeeName) {
			continue
		}
		out = append(out, h)
	}
	return out
}

type ProductionTotals struct {
	Records         int     `json:"records"`
	TotalLiters     float64 `json:"totalLiters"`
	LitersAsBushels float64 `json:"litersAsBushels"`
	TotalBushels    float64 `json:"totalBushels"`
	TotalValue      float64 `json:"totalValue"`
}

// Production consolidates harvested quantities in alqueires. The value is
// priced per record.
func Production(records []models.HarvestRecord) ProductionTotals {
	var t ProductionTotals
	var bushels float64
	for _, h := range records {
		t.TotalLiters += h.Liters
		bushels += h.BushelsAlqueires
		t.TotalValue += (h.BushelsAlqueires + h.Liters/LitersPerBushel) * h.PricePerUnit
	}
	t.Records = len(records)
	t.LitersAsBushels = t.TotalLiters / LitersPerBushel
	t.TotalBushels = bushels + t.LitersAsBushels
	return t
}

// Services lists the distinct recipe service types in arrival order.
func Services(recipes []models.Recipe) []string {
	seen := make(map[string]bool, len(recipes))
	out := []string{}
	for _, r := range recipes {
		if r.ServiceType == "" || seen[r.ServiceType] {
			continue
		}
		seen[r.ServiceType] = true
		out = append(out, r.ServiceType)
	}
	return out
}

func RecipesForService(recipes []models.Recipe, service string) []models.Recipe {
	out := []models.Recipe{}
	for _, r := range recipes {
		if r.ServiceType == service {
			out = append(out, r)
		}
	}
	return out
}
