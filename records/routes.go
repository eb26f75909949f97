package records

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"coffeefarm/appstate"
	"coffeefarm/forms"
	"coffeefarm/models"
	"coffeefarm/utils"
	"coffeefarm/views"
)

// prepareActivity fills products from the chosen recipe when the client sent
// a recipe id without products.
func prepareActivity(s *Session, f *forms.Form[models.Activity, forms.ActivityDraft]) error {
	d := f.Draft()
	if d.RecipeID == "" || len(d.Products) > 0 {
		return nil
	}
	af := &forms.ActivityForm{Form: f}
	if err := af.SelectRecipe(s.Env.Recipes, d.RecipeID); err != nil {
		if errors.Is(err, forms.ErrUnknownRecipe) {
			return &forms.ValidationError{Fields: []string{"recipeId"}}
		}
		return err
	}
	return nil
}

// Register mounts every entity and the service endpoints.
func Register(router *httprouter.Router, deps *Deps, wrap func(httprouter.Handle) httprouter.Handle) {
	(&Resource[models.Plot, forms.PlotDraft]{
		Deps: deps, Codec: forms.PlotCodec{},
		List: (*appstate.State).Plots, Find: (*appstate.State).FindPlot,
	}).Register(router, "plots", wrap)

	(&Resource[models.Activity, forms.ActivityDraft]{
		Deps: deps, Codec: forms.ActivityCodec{},
		List: (*appstate.State).Activities, Find: (*appstate.State).FindActivity,
		Prepare: prepareActivity,
	}).Register(router, "activities", wrap)

	(&Resource[models.Recipe, forms.RecipeDraft]{
		Deps: deps, Codec: forms.RecipeCodec{},
		List: (*appstate.State).Recipes, Find: (*appstate.State).FindRecipe,
	}).Register(router, "recipes", wrap)

	(&Resource[models.Purchase, forms.PurchaseDraft]{
		Deps: deps, Codec: forms.PurchaseCodec{},
		List: (*appstate.State).Purchases, Find: (*appstate.State).FindPurchase,
	}).Register(router, "purchases", wrap)

	(&Resource[models.Employee, forms.EmployeeDraft]{
		Deps: deps, Codec: forms.EmployeeCodec{},
		List: (*appstate.State).Employees, Find: (*appstate.State).FindEmployee,
	}).Register(router, "employees", wrap)

	(&Resource[models.HarvestRecord, forms.HarvestDraft]{
		Deps: deps, Codec: forms.HarvestCodec{},
		List: (*appstate.State).Harvests, Find: (*appstate.State).FindHarvest,
	}).Register(router, "harvests", wrap)

	router.GET("/api/services", wrap(deps.Services))
	router.POST("/api/services", wrap(deps.AddService))
	router.GET("/api/services/:service/recipes", wrap(deps.ServiceRecipes))
}

// Services lists the distinct service types.
func (d *Deps) Services(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s, release, err := d.Open(r)
	if err != nil {
		d.WriteError(w, err)
		return
	}
	defer release()
	utils.SendResponse(w, http.StatusOK, views.Services(s.Env.Recipes), "", nil)
}

// ServiceRecipes lists the recipes of one service type.
func (d *Deps) ServiceRecipes(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s, release, err := d.Open(r)
	if err != nil {
		d.WriteError(w, err)
		return
	}
	defer release()
	utils.SendResponse(w, http.StatusOK, views.RecipesForService(s.Env.Recipes, ps.ByName("service")), "", nil)
}

// AddService creates an empty recipe named after a new service type.
func (d *Deps) AddService(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s, release, err := d.Open(r)
	if err != nil {
		d.WriteError(w, err)
		return
	}
	defer release()
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendResponse(w, http.StatusBadRequest, nil, errBadJSON.Error(), err)
		return
	}
	id, status, err := forms.AddService(r.Context(), s.Target, req.Name)
	d.Metrics.Write(string(models.KindRecipes), "insert", err)
	d.broadcast(s.Target.Owner, status)
	if err != nil {
		var verr *forms.ValidationError
		if errors.As(err, &verr) {
			utils.SendResponse(w, http.StatusUnprocessableEntity, verr, status, err)
			return
		}
		d.WriteError(w, err)
		return
	}
	utils.SendResponse(w, http.StatusCreated, map[string]string{"id": id}, status, nil)
}
