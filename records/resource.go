package records

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"coffeefarm/appstate"
	"coffeefarm/db"
	"coffeefarm/forms"
	"coffeefarm/utils"
	"coffeefarm/websock"
)

func statusEvent(status string) []byte { return websock.StatusEvent(status) }

// Resource serves one entity kind.
type Resource[T interface{ Key() string }, D any] struct {
	Deps  *Deps
	Codec forms.Codec[T, D]
	List  func(*appstate.State) []T
	Find  func(*appstate.State, string) (T, bool)
	// Prepare runs on the decoded draft before submit.
	Prepare func(s *Session, f *forms.Form[T, D]) error
}

// Entry pairs a stored record with its editable draft.
type Entry[T any, D any] struct {
	Record T `json:"record"`
	Draft  D `json:"draft"`
}

var errBadJSON = errors.New("invalid JSON body")

func (rs *Resource[T, D]) form(s *Session) *forms.Form[T, D] {
	return forms.New(rs.Codec, s.Target, s.Env, rs.Deps.formOptions())
}

// decodeInto applies the JSON body over the form's current draft, so
// omitted fields keep their defaults or stored values.
func decodeInto[T interface{ Key() string }, D any](r *http.Request, f *forms.Form[T, D]) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return errBadJSON
	}
	if len(body) == 0 {
		return nil
	}
	var decodeErr error
	f.Edit(func(d *D) { decodeErr = json.Unmarshal(body, d) })
	if decodeErr != nil {
		return errBadJSON
	}
	return nil
}

func (rs *Resource[T, D]) Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s, release, err := rs.Deps.Open(r)
	if err != nil {
		rs.Deps.WriteError(w, err)
		return
	}
	defer release()
	utils.SendResponse(w, http.StatusOK, rs.List(s.State), "", nil)
}

// Show returns the record and its draft for editing.
func (rs *Resource[T, D]) Show(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s, release, err := rs.Deps.Open(r)
	if err != nil {
		rs.Deps.WriteError(w, err)
		return
	}
	defer release()
	rec, ok := rs.Find(s.State, ps.ByName("id"))
	if !ok {
		rs.Deps.WriteError(w, db.ErrNotFound)
		return
	}
	utils.SendResponse(w, http.StatusOK, Entry[T, D]{Record: rec, Draft: rs.Codec.Draft(rec, s.Env)}, "", nil)
}

// Blank returns the draft a new record starts from.
func (rs *Resource[T, D]) Blank(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s, release, err := rs.Deps.Open(r)
	if err != nil {
		rs.Deps.WriteError(w, err)
		return
	}
	defer release()
	utils.SendResponse(w, http.StatusOK, rs.Codec.Empty(s.Env), "", nil)
}

func (rs *Resource[T, D]) submit(w http.ResponseWriter, r *http.Request, s *Session, f *forms.Form[T, D], created bool) {
	if err := decodeInto(r, f); err != nil {
		utils.SendResponse(w, http.StatusBadRequest, nil, err.Error(), err)
		return
	}
	if rs.Prepare != nil {
		if err := rs.Prepare(s, f); err != nil {
			rs.Deps.WriteError(w, err)
			return
		}
	}
	id, err := f.Submit(r.Context())
	rs.Deps.broadcast(s.Target.Owner, f.Status())
	if err != nil {
		rs.Deps.WriteError(w, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	utils.SendResponse(w, code, map[string]string{"id": id}, f.Status(), nil)
}

func (rs *Resource[T, D]) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s, release, err := rs.Deps.Open(r)
	if err != nil {
		rs.Deps.WriteError(w, err)
		return
	}
	defer release()
	f := rs.form(s)
	f.Open(nil)
	rs.submit(w, r, s, f, true)
}

func (rs *Resource[T, D]) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s, release, err := rs.Deps.Open(r)
	if err != nil {
		rs.Deps.WriteError(w, err)
		return
	}
	defer release()
	rec, ok := rs.Find(s.State, ps.ByName("id"))
	if !ok {
		rs.Deps.WriteError(w, db.ErrNotFound)
		return
	}
	f := rs.form(s)
	f.Open(&rec)
	rs.submit(w, r, s, f, false)
}

// Delete requires ?confirm=true; without it nothing is removed.
func (rs *Resource[T, D]) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s, release, err := rs.Deps.Open(r)
	if err != nil {
		rs.Deps.WriteError(w, err)
		return
	}
	defer release()
	confirmed := r.URL.Query().Get("confirm") == "true"
	f := rs.form(s)
	prompt := ""
	ok, err := f.Delete(r.Context(), ps.ByName("id"), forms.ConfirmFunc(func(p string) bool {
		prompt = p
		return confirmed
	}))
	if err != nil {
		rs.Deps.broadcast(s.Target.Owner, f.Status())
		rs.Deps.WriteError(w, err)
		return
	}
	if !ok {
		utils.SendResponse(w, http.StatusPreconditionRequired, nil, prompt, nil)
		return
	}
	rs.Deps.broadcast(s.Target.Owner, f.Status())
	utils.SendResponse(w, http.StatusOK, nil, f.Status(), nil)
}

// Register mounts the resource under /api/<base>; the blank draft lives at
// /api/drafts/<base> since httprouter cannot mix it with /:id.
func (rs *Resource[T, D]) Register(router *httprouter.Router, base string, wrap func(httprouter.Handle) httprouter.Handle) {
	router.GET("/api/"+base, wrap(rs.Index))
	router.GET("/api/drafts/"+base, wrap(rs.Blank))
	router.GET("/api/"+base+"/:id", wrap(rs.Show))
	router.POST("/api/"+base, wrap(rs.Create))
	router.PUT("/api/"+base+"/:id", wrap(rs.Update))
	router.DELETE("/api/"+base+"/:id", wrap(rs.Delete))
}
