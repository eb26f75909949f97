package forms

import (
	"context"
	"errors"
	"strings"

	"coffeefarm/models"
	"coffeefarm/utils"
)

type ActivityDraft struct {
	PlotID      string           `json:"plotId"`
	PlotName    string           `json:"plotName"`
	Date        string           `json:"date"`
	ServiceType string           `json:"serviceType"`
	RecipeID    string           `json:"recipeId"`
	Products    []models.Product `json:"products"`
	Note        string           `json:"note"`
}

type ActivityCodec struct{}

func (ActivityCodec) Kind() models.Kind { return models.KindActivities }
func (ActivityCodec) Timestamped() bool { return true }

func (ActivityCodec) Messages() Messages {
	return Messages{
		Added:         "Atividade adicionada com sucesso!",
		Updated:       "Atividade atualizada com sucesso!",
		Deleted:       "Atividade deletada com sucesso!",
		SaveError:     "Erro ao salvar atividade",
		DeleteError:   "Erro ao deletar atividade",
		ConfirmDelete: "Tem certeza que deseja deletar esta atividade?",
	}
}

func (ActivityCodec) Empty(env Env) ActivityDraft {
	d := ActivityDraft{Date: env.today(), Products: []models.Product{}}
	if len(env.Plots) > 0 {
		d.PlotID, d.PlotName = env.Plots[0].ID, env.Plots[0].Name
	}
	return d
}

// Draft of an undated activity gets today's date.
func (ActivityCodec) Draft(a models.Activity, env Env) ActivityDraft {
	date := utils.FormatDate(a.Date, env.location())
	if date == "" {
		date = env.today()
	}
	return ActivityDraft{
		PlotID:      a.PlotID,
		PlotName:    a.PlotName,
		Date:        date,
		ServiceType: a.ServiceType,
		RecipeID:    matchRecipe(env.Recipes, a),
		Products:    models.CopyProducts(a.Products),
		Note:        a.Note,
	}
}

// matchRecipe finds the recipe an activity was most likely filled from: same
// service type and every recipe product present in the activity.
func matchRecipe(recipes []models.Recipe, a models.Activity) string {
	have := make(map[string]bool, len(a.Products))
	for _, p := range a.Products {
		have[p.Name] = true
	}
	for _, r := range recipes {
		if r.ServiceType != a.ServiceType {
			continue
		}
		all := true
		for _, p := range r.Products {
			if !have[p.Name] {
				all = false
				break
			}
		}
		if all {
			return r.ID
		}
	}
	return ""
}

func (ActivityCodec) Build(d ActivityDraft, env Env) (models.Activity, error) {
	var n numbers
	plotID, plotName := env.Index().PlotRef(d.PlotID, d.PlotName)
	a := models.Activity{
		PlotID:      plotID,
		PlotName:    plotName,
		Date:        parseDate(&n, "date", d.Date, env.location()),
		ServiceType: d.ServiceType,
		Products:    models.CopyProducts(d.Products),
		Note:        d.Note,
	}
	return a, n.err()
}

func (ActivityCodec) Merge(built, prev models.Activity) models.Activity {
	built.CreatedAt = keepCreated(prev.CreatedAt)
	return built
}

// ActivityForm adds the service/recipe coupling to the activity form.
type ActivityForm struct {
	*Form[models.Activity, ActivityDraft]
}

func NewActivityForm(target Target, env Env, opts Options) *ActivityForm {
	return &ActivityForm{New[models.Activity, ActivityDraft](ActivityCodec{}, target, env, opts)}
}

// SelectService changes the service type and clears the recipe and its
// products.
func (f *ActivityForm) SelectService(service string) {
	f.Edit(func(d *ActivityDraft) {
		d.ServiceType = service
		d.RecipeID = ""
		d.Products = []models.Product{}
	})
}

// ErrUnknownRecipe is returned by SelectRecipe for an id not in the list.
var ErrUnknownRecipe = errors.New("forms: unknown recipe")

// SelectRecipe fills service type and products from the recipe. Products are
// copied, so later recipe edits do not change the activity. An unknown id
// clears the products.
func (f *ActivityForm) SelectRecipe(recipes []models.Recipe, id string) error {
	for _, r := range recipes {
		if r.ID != id {
			continue
		}
		f.Edit(func(d *ActivityDraft) {
			d.RecipeID = r.ID
			d.ServiceType = r.ServiceType
			d.Products = models.CopyProducts(r.Products)
		})
		return nil
	}
	f.Edit(func(d *ActivityDraft) {
		d.RecipeID = ""
		d.Products = []models.Product{}
	})
	return ErrUnknownRecipe
}

// Status lines of AddService.
const (
	StatusServiceAdded   = "Novo serviço adicionado com sucesso!"
	StatusServiceEmpty   = "O nome da atividade não pode ser vazio."
	StatusServiceFailure = "Erro ao adicionar novo serviço"
)

// ErrEmptyService rejects a blank service name.
var ErrEmptyService = &ValidationError{Fields: []string{"serviceType"}}

// AddService creates a recipe named after a new service type, with no
// products, so the type shows up in the service list. It returns the new
// recipe id and the status line.
func AddService(ctx context.Context, t Target, name string) (string, string, error) {
	if t.Owner == "" {
		return "", StatusNoOwner, ErrNoOwner
	}
	if strings.TrimSpace(name) == "" {
		return "", StatusServiceEmpty, ErrEmptyService
	}
	recipe := models.Recipe{Name: name, ServiceType: name, Products: []models.Product{}}
	id, err := t.Store.Insert(ctx, t.Path(models.KindRecipes), recipe)
	if err != nil {
		status := StatusServiceFailure + ": " + err.Error()
		return "", status, &WriteError{Op: "add service", Status: status, Err: err}
	}
	return id, StatusServiceAdded, nil
}

var (
	_ Codec[models.Plot, PlotDraft]             = PlotCodec{}
	_ Codec[models.Activity, ActivityDraft]     = ActivityCodec{}
	_ Codec[models.Recipe, RecipeDraft]         = RecipeCodec{}
	_ Codec[models.Purchase, PurchaseDraft]     = PurchaseCodec{}
	_ Codec[models.Employee, EmployeeDraft]     = EmployeeCodec{}
	_ Codec[models.HarvestRecord, HarvestDraft] = HarvestCodec{}
)
