// Package migrate rewrites the stored display names that dependents carry
// when a plot or an employee is renamed.
package migrate

import (
	"context"
	"fmt"

	"coffeefarm/db"
	"coffeefarm/models"
)

func path(ns, owner string, kind models.Kind) db.Path {
	return db.Path{Namespace: ns, Owner: owner, Kind: kind}
}

func load[T any, PT interface {
	*T
	SetID(string)
}](ctx context.Context, store db.Store, p db.Path) ([]T, error) {
	docs, err := store.List(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p.Kind, err)
	}
	var firstErr error
	out := db.DecodeAll[T, PT](docs, func(_ db.Document, err error) {
		if firstErr == nil {
			firstErr = err
		}
	})
	return out, firstErr
}

// points reports whether a dependent with (refID, refName) points at id. Old
// records hold only the name.
func points(id, oldName, refID, refName string) bool {
	if refID != "" {
		return refID == id
	}
	return oldName != "" && refName == oldName
}

// RewritePlotRefs sets plotId and plotName on every activity and harvest
// pointing at the plot. It returns the number of rewritten documents.
func RewritePlotRefs(ctx context.Context, store db.Store, ns, owner, plotID, oldName, newName string) (int, error) {
	n := 0

	ap := path(ns, owner, models.KindActivities)
	acts, err := load[models.Activity](ctx, store, ap)
	if err != nil {
		return n, err
	}
	for _, a := range acts {
		if !points(plotID, oldName, a.PlotID, a.PlotName) || (a.PlotID == plotID && a.PlotName == newName) {
			continue
		}
		a.PlotID, a.PlotName = plotID, newName
		if err := store.Update(ctx, ap, a.ID, a); err != nil {
			return n, fmt.Errorf("rewrite activity %s: %w", a.ID, err)
		}
		n++
	}

	hp := path(ns, owner, models.KindHarvests)
	harvests, err := load[models.HarvestRecord](ctx, store, hp)
	if err != nil {
		return n, err
	}
	for _, h := range harvests {
		if !points(plotID, oldName, h.PlotID, h.PlotName) || (h.PlotID == plotID && h.PlotName == newName) {
			continue
		}
		h.PlotID, h.PlotName = plotID, newName
		if err := store.Update(ctx, hp, h.ID, h); err != nil {
			return n, fmt.Errorf("rewrite harvest %s: %w", h.ID, err)
		}
		n++
	}
	return n, nil
}

// RewriteEmployeeRefs does the same for harvests pointing at an employee.
func RewriteEmployeeRefs(ctx context.Context, store db.Store, ns, owner, employeeID, oldName, newName string) (int, error) {
	n := 0
	hp := path(ns, owner, models.KindHarvests)
	harvests, err := load[models.HarvestRecord](ctx, store, hp)
	if err != nil {
		return n, err
	}
	for _, h := range harvests {
		if !points(employeeID, oldName, h.EmployeeID, h.EmployeeName) || (h.EmployeeID == employeeID && h.EmployeeName == newName) {
			continue
		}
		h.EmployeeID, h.EmployeeName = employeeID, newName
		if err := store.Update(ctx, hp, h.ID, h); err != nil {
			return n, fmt.Errorf("rewrite harvest %s: %w", h.ID, err)
		}
		n++
	}
	return n, nil
}

func findByID[T interface{ Key() string }](items []T, id string) (T, bool) {
	for _, it := range items {
		if it.Key() == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// RenamePlot renames the plot and rewrites its dependents.
func RenamePlot(ctx context.Context, store db.Store, ns, owner, plotID, newName string) (int, error) {
	pp := path(ns, owner, models.KindPlots)
	plots, err := load[models.Plot](ctx, store, pp)
	if err != nil {
		return 0, err
	}
	plot, ok := findByID(plots, plotID)
	if !ok {
		return 0, db.ErrNotFound
	}
	oldName := plot.Name
	plot.Name = newName
	if err := store.Update(ctx, pp, plotID, plot); err != nil {
		return 0, fmt.Errorf("rename plot: %w", err)
	}
	return RewritePlotRefs(ctx, store, ns, owner, plotID, oldName, newName)
}

// RenameEmployee renames the employee and rewrites its harvests.
func RenameEmployee(ctx context.Context, store db.Store, ns, owner, employeeID, newName string) (int, error) {
	ep := path(ns, owner, models.KindEmployees)
	employees, err := load[models.Employee](ctx, store, ep)
	if err != nil {
		return 0, err
	}
	emp, ok := findByID(employees, employeeID)
	if !ok {
		return 0, db.ErrNotFound
	}
	oldName := emp.FullName
	emp.FullName = newName
	if err := store.Update(ctx, ep, employeeID, emp); err != nil {
		return 0, fmt.Errorf("rename employee: %w", err)
	}
	return RewriteEmployeeRefs(ctx, store, ns, owner, employeeID, oldName, newName)
}
