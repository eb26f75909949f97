// Package records serves the create, edit and delete endpoints of every
// entity on top of the forms workflow.
package records

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"coffeefarm/appstate"
	"coffeefarm/db"
	"coffeefarm/forms"
	"coffeefarm/metrics"
	"coffeefarm/utils"
)

// readyTimeout bounds how long a request waits for the first snapshot of
// every collection.
const readyTimeout = 10 * time.Second

// Broadcaster pushes status lines to the owner's open connections.
type Broadcaster interface {
	Broadcast(room string, data []byte)
}

// States hands out the live state of an owner.
type States interface {
	Acquire(ctx context.Context, owner string) (*appstate.State, func(), error)
}

type Deps struct {
	States  States
	Store   db.Store
	Hub     Broadcaster
	Loc     *time.Location
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Now is the request clock; nil means time.Now.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// Log is the request logger, never nil.
func (d *Deps) Log() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// Session is one request's view of its owner's records.
type Session struct {
	State  *appstate.State
	Target forms.Target
	Env    forms.Env
}

// Open acquires the owner's state and waits for it to load. The returned
// release must be called once the request is done.
func (d *Deps) Open(r *http.Request) (*Session, func(), error) {
	owner := utils.GetUserIDFromRequest(r)
	if owner == "" {
		return nil, nil, forms.ErrNoOwner
	}
	state, release, err := d.States.Acquire(r.Context(), owner)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := state.Ready(ctx); err != nil {
		release()
		return nil, nil, err
	}
	store := d.Store
	if store == nil {
		store = state.Store()
	}
	return &Session{
		State:  state,
		Target: forms.Target{Store: store, Namespace: state.Namespace(), Owner: owner},
		Env: forms.Env{
			Now:       d.now(),
			Loc:       d.Loc,
			Plots:     state.Plots(),
			Employees: state.Employees(),
			Recipes:   state.Recipes(),
		},
	}, release, nil
}

func (d *Deps) formOptions() forms.Options {
	return forms.Options{Logger: d.Logger, Metrics: d.Metrics, CloseDelay: -1}
}

func (d *Deps) broadcast(owner, status string) {
	if d.Hub == nil || status == "" {
		return
	}
	d.Hub.Broadcast(owner, statusEvent(status))
}

// WriteError maps a records error onto a status code and writes it.
func (d *Deps) WriteError(w http.ResponseWriter, err error) {
	var (
		verr *forms.ValidationError
		werr *forms.WriteError
	)
	switch {
	case errors.Is(err, forms.ErrNoOwner):
		utils.SendResponse(w, http.StatusUnauthorized, nil, forms.StatusNoOwner, err)
	case errors.As(err, &verr):
		utils.SendResponse(w, http.StatusUnprocessableEntity, verr, verr.Error(), err)
	case errors.Is(err, db.ErrNotFound):
		utils.SendResponse(w, http.StatusNotFound, nil, "Registro não encontrado", err)
	case errors.Is(err, context.DeadlineExceeded):
		utils.SendResponse(w, http.StatusServiceUnavailable, nil, "Dados ainda carregando", err)
	case errors.As(err, &werr):
		msg := werr.Status
		if msg == "" {
			msg = "Falha ao gravar"
		}
		utils.SendResponse(w, http.StatusBadGateway, nil, msg, err)
	default:
		d.Log().Error("request failed", zap.Error(err))
		utils.SendResponse(w, http.StatusInternalServerError, nil, "Erro interno", err)
	}
}
