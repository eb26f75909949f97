// Package seed writes the example farm records for a new owner. It runs only
// when asked to, and only once per owner unless forced.
package seed

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"coffeefarm/db"
	"coffeefarm/models"
)

// MarkerID is the setup document recording that examples were written.
const MarkerID = "examples"

type marker struct {
	SeededAt time.Time `bson:"seededAt"`
}

// Options tunes Examples.
type Options struct {
	Force  bool
	Now    time.Time
	Loc    *time.Location
	Logger *zap.Logger
}

// Result reports what Examples did.
type Result struct {
	AlreadySeeded bool                `json:"alreadySeeded"`
	Inserted      map[models.Kind]int `json:"inserted"`
}

func date(y int, m time.Month, d int, loc *time.Location) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return &t
}

// Examples inserts the example records into every empty collection of owner
// and writes the setup marker. Later calls do nothing unless opts.Force is
// set, even if the collections were emptied since.
func Examples(ctx context.Context, store db.Store, ns, owner string, opts Options) (Result, error) {
	res := Result{Inserted: make(map[models.Kind]int)}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("owner", owner))
	loc := opts.Loc
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	path := func(k models.Kind) db.Path { return db.Path{Namespace: ns, Owner: owner, Kind: k} }

	setup, err := store.List(ctx, path(models.KindSetup))
	if err != nil {
		return res, fmt.Errorf("read setup marker: %w", err)
	}
	if !opts.Force {
		for _, d := range setup {
			if d.ID == MarkerID {
				res.AlreadySeeded = true
				return res, nil
			}
		}
	}

	existing := make(map[models.Kind][]db.Document, len(models.Kinds))
	for _, k := range models.Kinds {
		docs, err := store.List(ctx, path(k))
		if err != nil {
			return res, fmt.Errorf("list %s: %w", k, err)
		}
		existing[k] = docs
	}

	insert := func(k models.Kind, body any, opts ...db.WriteOption) (string, error) {
		id, err := store.Insert(ctx, path(k), body, opts...)
		if err != nil {
			return "", fmt.Errorf("seed %s: %w", k, err)
		}
		res.Inserted[k]++
		return id, nil
	}
	stamp := db.WithServerTimestamp("createdAt")

	plotID := idByName(existing[models.KindPlots], "name", "C-01")
	if len(existing[models.KindPlots]) == 0 {
		logger.Info("plots empty, adding example data")
		plotID, err = insert(models.KindPlots, models.Plot{
			Name: "C-01", Cultivar: "Catuaí", AreaHectares: 5.0,
			PlantCount: 5000, PlantingYear: 2020, AltitudeMeters: 900,
		})
		if err != nil {
			return res, err
		}
	}

	if len(existing[models.KindActivities]) == 0 {
		logger.Info("activities empty, adding example data")
		_, err = insert(models.KindActivities, models.Activity{
			PlotID: plotID, PlotName: "C-01", Date: &now, ServiceType: "Adubação",
			Products: []models.Product{{Name: "Fertilizante X", Dose: "100", Unit: "kg"}},
			Note:     "Adubação de rotina",
		}, stamp)
		if err != nil {
			return res, err
		}
	}

	if len(existing[models.KindRecipes]) == 0 {
		logger.Info("recipes empty, adding example data")
		for _, r := range []models.Recipe{
			{Name: "Adubação de Verão", ServiceType: "Adubação", Products: []models.Product{{Name: "NPK 20-10-10", Dose: "150", Unit: "kg/ha"}}},
			{Name: "Controle de Pragas", ServiceType: "Foliar", Products: []models.Product{{Name: "Inseticida A", Dose: "1", Unit: "L/ha"}}},
		} {
			if _, err := insert(models.KindRecipes, r); err != nil {
				return res, err
			}
		}
	}

	if len(existing[models.KindPurchases]) == 0 {
		logger.Info("purchases empty, adding example data")
		_, err = insert(models.KindPurchases, models.Purchase{
			ProductName: "Adubo NPK", Unit: "sacos", PurchaseDate: date(2024, time.January, 15, loc),
			Quantity: 10, Price: 150.00,
		}, stamp)
		if err != nil {
			return res, err
		}
	}

	employeeID := idByName(existing[models.KindEmployees], "fullName", "João Silva")
	if len(existing[models.KindEmployees]) == 0 {
		logger.Info("employees empty, adding example data")
		employeeID, err = insert(models.KindEmployees, models.Employee{
			FullName: "João Silva", BirthDate: "1990-05-20", NationalID: "123456789",
		}, stamp)
		if err != nil {
			return res, err
		}
	}

	if len(existing[models.KindHarvests]) == 0 {
		logger.Info("harvests empty, adding example data")
		_, err = insert(models.KindHarvests, models.HarvestRecord{
			PlotID: plotID, PlotName: "C-01", EmployeeID: employeeID, EmployeeName: "João Silva",
			BushelsAlqueires: 2.5, Liters: 500, PricePerUnit: 5.00, Date: date(2024, time.July, 20, loc),
		}, stamp)
		if err != nil {
			return res, err
		}
	}

	if err := store.Put(ctx, path(models.KindSetup), MarkerID, marker{SeededAt: now.UTC()}); err != nil {
		return res, fmt.Errorf("write setup marker: %w", err)
	}
	return res, nil
}

// idByName finds the id of the first document whose field equals name.
func idByName(docs []db.Document, field, name string) string {
	for _, d := range docs {
		if v, ok := d.Body.Lookup(field).StringValueOK(); ok && v == name {
			return d.ID
		}
	}
	return ""
}
