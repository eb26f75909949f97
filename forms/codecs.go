package forms

import (
	"context"
	"strings"
	"time"

	"coffeefarm/migrate"
	"coffeefarm/models"
	"coffeefarm/utils"
)

// parseDate reads an optional YYYY-MM-DD field; a non-empty value that does
// not parse is reported to n.
func parseDate(n *numbers, name, s string, loc *time.Location) *time.Time {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	t := utils.ParseDate(s, loc)
	if t == nil {
		n.bad = append(n.bad, name)
	}
	return t
}

func keepCreated(prev *time.Time) *time.Time {
	if prev == nil {
		return nil
	}
	t := *prev
	return &t
}

// Plots

type PlotDraft struct {
	Name           string `json:"name"`
	Cultivar       string `json:"cultivar"`
	Spacing        string `json:"spacing"`
	AreaHectares   Field  `json:"areaHectares"`
	PlantCount     Field  `json:"plantCount"`
	PlantingYear   Field  `json:"plantingYear"`
	AltitudeMeters Field  `json:"altitudeMeters"`
}

type PlotCodec struct{}

func (PlotCodec) Kind() models.Kind { return models.KindPlots }
func (PlotCodec) Timestamped() bool { return false }

func (PlotCodec) Messages() Messages {
	return Messages{
		Added:         "Talhão adicionado com sucesso!",
		Updated:       "Talhão atualizado com sucesso!",
		Deleted:       "Talhão deletado com sucesso!",
		SaveError:     "Erro ao salvar talhão",
		DeleteError:   "Erro ao deletar talhão",
		ConfirmDelete: "Tem certeza que deseja deletar este talhão?",
	}
}

func (PlotCodec) Empty(Env) PlotDraft { return PlotDraft{} }

func (PlotCodec) Draft(p models.Plot, _ Env) PlotDraft {
	return PlotDraft{
		Name:           p.Name,
		Cultivar:       p.Cultivar,
		Spacing:        p.Spacing,
		AreaHectares:   FormatNumber(p.AreaHectares),
		PlantCount:     FormatInt(p.PlantCount),
		PlantingYear:   FormatInt(p.PlantingYear),
		AltitudeMeters: FormatInt(p.AltitudeMeters),
	}
}

func (PlotCodec) Build(d PlotDraft, _ Env) (models.Plot, error) {
	var n numbers
	p := models.Plot{
		Name:           d.Name,
		Cultivar:       d.Cultivar,
		Spacing:        d.Spacing,
		AreaHectares:   n.float("areaHectares", d.AreaHectares),
		PlantCount:     n.int("plantCount", d.PlantCount),
		PlantingYear:   n.int("plantingYear", d.PlantingYear),
		AltitudeMeters: n.int("altitudeMeters", d.AltitudeMeters),
	}
	return p, n.err()
}

func (PlotCodec) Merge(built, _ models.Plot) models.Plot { return built }

// UpdateDependents carries a rename over to activities and harvests.
func (PlotCodec) UpdateDependents(ctx context.Context, t Target, prev, next models.Plot) error {
	if prev.Name == next.Name {
		return nil
	}
	_, err := migrate.RewritePlotRefs(ctx, t.Store, t.Namespace, t.Owner, prev.ID, prev.Name, next.Name)
	return err
}

// Recipes

type RecipeDraft struct {
	Name        string           `json:"name"`
	ServiceType string           `json:"serviceType"`
	Products    []models.Product `json:"products"`
}

type RecipeCodec struct{}

func (RecipeCodec) Kind() models.Kind { return models.KindRecipes }
func (RecipeCodec) Timestamped() bool { return false }

func (RecipeCodec) Messages() Messages {
	return Messages{
		Added:         "Receita adicionada com sucesso!",
		Updated:       "Receita atualizada com sucesso!",
		Deleted:       "Receita deletada com sucesso!",
		SaveError:     "Erro ao salvar receita",
		DeleteError:   "Erro ao deletar receita",
		ConfirmDelete: "Tem certeza que deseja deletar esta receita?",
	}
}

func (RecipeCodec) Empty(Env) RecipeDraft {
	return RecipeDraft{Products: []models.Product{{}}}
}

func (RecipeCodec) Draft(r models.Recipe, _ Env) RecipeDraft {
	return RecipeDraft{Name: r.Name, ServiceType: r.ServiceType, Products: models.CopyProducts(r.Products)}
}

// Build drops product lines without a name.
func (RecipeCodec) Build(d RecipeDraft, _ Env) (models.Recipe, error) {
	products := make([]models.Product, 0, len(d.Products))
	for _, p := range d.Products {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		products = append(products, p)
	}
	return models.Recipe{Name: d.Name, ServiceType: d.ServiceType, Products: products}, nil
}

func (RecipeCodec) Merge(built, _ models.Recipe) models.Recipe { return built }

// Purchases

type PurchaseDraft struct {
	ProductName  string `json:"productName"`
	Unit         string `json:"unit"`
	PurchaseDate string `json:"purchaseDate"`
	Quantity     Field  `json:"quantity"`
	Price        Field  `json:"price"`
}

type PurchaseCodec struct{}

func (PurchaseCodec) Kind() models.Kind { return models.KindPurchases }
func (PurchaseCodec) Timestamped() bool { return true }

func (PurchaseCodec) Messages() Messages {
	return Messages{
		Added:         "Compra adicionada com sucesso!",
		Updated:       "Compra atualizada com sucesso!",
		Deleted:       "Compra deletada com sucesso!",
		SaveError:     "Erro ao salvar compra",
		DeleteError:   "Erro ao deletar compra",
		ConfirmDelete: "Tem certeza que deseja deletar esta compra?",
	}
}

func (PurchaseCodec) Empty(env Env) PurchaseDraft {
	return PurchaseDraft{PurchaseDate: env.today()}
}

func (PurchaseCodec) Draft(p models.Purchase, env Env) PurchaseDraft {
	return PurchaseDraft{
		ProductName:  p.ProductName,
		Unit:         p.Unit,
		PurchaseDate: utils.FormatDate(p.PurchaseDate, env.location()),
		Quantity:     FormatNumber(p.Quantity),
		Price:        FormatNumber(p.Price),
	}
}

func (PurchaseCodec) Build(d PurchaseDraft, env Env) (models.Purchase, error) {
	var n numbers
	p := models.Purchase{
		ProductName:  d.ProductName,
		Unit:         d.Unit,
		PurchaseDate: parseDate(&n, "purchaseDate", d.PurchaseDate, env.location()),
		Quantity:     n.float("quantity", d.Quantity),
		Price:        n.float("price", d.Price),
	}
	return p, n.err()
}

func (PurchaseCodec) Merge(built, prev models.Purchase) models.Purchase {
	built.CreatedAt = keepCreated(prev.CreatedAt)
	return built
}

// Employees

type EmployeeDraft struct {
	FullName   string `json:"fullName"`
	BirthDate  string `json:"birthDate"`
	NationalID string `json:"nationalId"`
}

type EmployeeCodec struct{}

func (EmployeeCodec) Kind() models.Kind { return models.KindEmployees }
func (EmployeeCodec) Timestamped() bool { return true }

func (EmployeeCodec) Messages() Messages {
	return Messages{
		Added:         "Funcionário adicionado com sucesso!",
		Updated:       "Funcionário atualizado com sucesso!",
		Deleted:       "Funcionário deletado com sucesso!",
		SaveError:     "Erro ao salvar funcionário",
		DeleteError:   "Erro ao deletar funcionário",
		ConfirmDelete: "Tem certeza que deseja deletar este funcionário?",
	}
}

func (EmployeeCodec) Empty(Env) EmployeeDraft { return EmployeeDraft{} }

func (EmployeeCodec) Draft(e models.Employee, _ Env) EmployeeDraft {
	return EmployeeDraft{FullName: e.FullName, BirthDate: e.BirthDate, NationalID: e.NationalID}
}

func (EmployeeCodec) Build(d EmployeeDraft, _ Env) (models.Employee, error) {
	return models.Employee{FullName: d.FullName, BirthDate: d.BirthDate, NationalID: d.NationalID}, nil
}

func (EmployeeCodec) Merge(built, prev models.Employee) models.Employee {
	built.CreatedAt = keepCreated(prev.CreatedAt)
	return built
}

// UpdateDependents carries a rename over to harvest records.
func (EmployeeCodec) UpdateDependents(ctx context.Context, t Target, prev, next models.Employee) error {
	if prev.FullName == next.FullName {
		return nil
	}
	_, err := migrate.RewriteEmployeeRefs(ctx, t.Store, t.Namespace, t.Owner, prev.ID, prev.FullName, next.FullName)
	return err
}

// Harvests

type HarvestDraft struct {
	PlotID           string `json:"plotId"`
	PlotName         string `json:"plotName"`
	EmployeeID       string `json:"employeeId"`
	EmployeeName     string `json:"employeeName"`
	BushelsAlqueires Field  `json:"bushelsAlqueires"`
	Liters           Field  `json:"liters"`
	PricePerUnit     Field  `json:"pricePerUnit"`
	Date             string `json:"date"`
}

type HarvestCodec struct{}

func (HarvestCodec) Kind() models.Kind { return models.KindHarvests }
func (HarvestCodec) Timestamped() bool { return true }

func (HarvestCodec) Messages() Messages {
	return Messages{
		Added:         "Colheita adicionada com sucesso!",
		Updated:       "Colheita atualizada com sucesso!",
		Deleted:       "Registro de colheita deletado com sucesso!",
		SaveError:     "Erro ao salvar colheita",
		DeleteError:   "Erro ao deletar registro de colheita",
		ConfirmDelete: "Tem certeza que deseja deletar este registro de colheita?",
	}
}

func (HarvestCodec) Empty(env Env) HarvestDraft {
	d := HarvestDraft{Date: env.today()}
	if len(env.Plots) > 0 {
		d.PlotID, d.PlotName = env.Plots[0].ID, env.Plots[0].Name
	}
	if len(env.Employees) > 0 {
		d.EmployeeID, d.EmployeeName = env.Employees[0].ID, env.Employees[0].FullName
	}
	return d
}

func (HarvestCodec) Draft(h models.HarvestRecord, env Env) HarvestDraft {
	return HarvestDraft{
		PlotID:           h.PlotID,
		PlotName:         h.PlotName,
		EmployeeID:       h.EmployeeID,
		EmployeeName:     h.EmployeeName,
		BushelsAlqueires: FormatNumber(h.BushelsAlqueires),
		Liters:           FormatNumber(h.Liters),
		PricePerUnit:     FormatNumber(h.PricePerUnit),
		Date:             utils.FormatDate(h.Date, env.location()),
	}
}

// Build links plot and employee by id, or by name when only a name is given.
func (HarvestCodec) Build(d HarvestDraft, env Env) (models.HarvestRecord, error) {
	var n numbers
	ix := env.Index()
	plotID, plotName := ix.PlotRef(d.PlotID, d.PlotName)
	employeeID, employeeName := ix.EmployeeRef(d.EmployeeID, d.EmployeeName)
	h := models.HarvestRecord{
		PlotID:           plotID,
		PlotName:         plotName,
		EmployeeID:       employeeID,
		EmployeeName:     employeeName,
		BushelsAlqueires: n.float("bushelsAlqueires", d.BushelsAlqueires),
		Liters:           n.float("liters", d.Liters),
		PricePerUnit:     n.float("pricePerUnit", d.PricePerUnit),
		Date:             parseDate(&n, "date", d.Date, env.location()),
	}
	return h, n.err()
}

func (HarvestCodec) Merge(built, prev models.HarvestRecord) models.HarvestRecord {
	built.CreatedAt = keepCreated(prev.CreatedAt)
	return built
}
