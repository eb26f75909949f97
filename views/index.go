package views

import "coffeefarm/models"

// Index resolves plot and employee references. Records point at their plot or
// employee by id; older records carry only the name, which is used as a
// fallback.
type Index struct {
	plots         map[string]models.Plot
	plotsByName   map[string]models.Plot
	employees     map[string]models.Employee
	employeesByNm map[string]models.Employee
}

func NewIndex(plots []models.Plot, employees []models.Employee) Index {
	ix := Index{
		plots:         make(map[string]models.Plot, len(plots)),
		plotsByName:   make(map[string]models.Plot, len(plots)),
		employees:     make(map[string]models.Employee, len(employees)),
		employeesByNm: make(map[string]models.Employee, len(employees)),
	}
	for _, p := range plots {
		ix.plots[p.ID] = p
		if _, dup := ix.plotsByName[p.Name]; !dup {
			ix.plotsByName[p.Name] = p
		}
	}
	for _, e := range employees {
		ix.employees[e.ID] = e
		if _, dup := ix.employeesByNm[e.FullName]; !dup {
			ix.employeesByNm[e.FullName] = e
		}
	}
	return ix
}

func (ix Index) Plot(id string) (models.Plot, bool) {
	p, ok := ix.plots[id]
	return p, ok
}

func (ix Index) PlotByName(name string) (models.Plot, bool) {
	p, ok := ix.plotsByName[name]
	return p, ok
}

func (ix Index) Employee(id string) (models.Employee, bool) {
	e, ok := ix.employees[id]
	return e, ok
}

func (ix Index) EmployeeByName(name string) (models.Employee, bool) {
	e, ok := ix.employeesByNm[name]
	return e, ok
}

// PlotName returns the current name of the plot a record points at.
func (ix Index) PlotName(plotID, storedName string) string {
	if p, ok := ix.plots[plotID]; ok {
		return p.Name
	}
	return storedName
}

// EmployeeName returns the current name of the employee a record points at.
func (ix Index) EmployeeName(employeeID, storedName string) string {
	if e, ok := ix.employees[employeeID]; ok {
		return e.FullName
	}
	return storedName
}

// PlotRef links a reference to a known plot: by id first, then by name for
// records that carry only the name. Unknown references come back unchanged.
func (ix Index) PlotRef(plotID, name string) (string, string) {
	if p, ok := ix.Plot(plotID); ok {
		return p.ID, p.Name
	}
	if plotID == "" {
		if p, ok := ix.PlotByName(name); ok {
			return p.ID, p.Name
		}
	}
	return plotID, name
}

// EmployeeRef is PlotRef for employees.
func (ix Index) EmployeeRef(employeeID, name string) (string, string) {
	if e, ok := ix.Employee(employeeID); ok {
		return e.ID, e.FullName
	}
	if employeeID == "" {
		if e, ok := ix.EmployeeByName(name); ok {
			return e.ID, e.FullName
		}
	}
	return employeeID, name
}

// refersTo reports whether a record with (refID, refName) points at wantID.
func refersTo(wantID, refID, refName string, byID func(string) (string, bool)) bool {
	if refID != "" {
		return refID == wantID
	}
	name, ok := byID(wantID)
	return ok && name == refName
}

// RefersToPlot reports whether the reference (plotID, plotName) names plot id.
func (ix Index) RefersToPlot(id, plotID, plotName string) bool {
	return refersTo(id, plotID, plotName, func(id string) (string, bool) {
		p, ok := ix.plots[id]
		return p.Name, ok
	})
}

// RefersToEmployee reports whether (employeeID, employeeName) names employee id.
func (ix Index) RefersToEmployee(id, employeeID, employeeName string) bool {
	return refersTo(id, employeeID, employeeName, func(id string) (string, bool) {
		e, ok := ix.employees[id]
		return e.FullName, ok
	})
}
