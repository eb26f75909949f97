// Package forms implements the create/edit/delete workflow shared by every
// entity: a draft that is only written on submit, explicit validation and a
// status line for the user.
package forms

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"coffeefarm/db"
	"coffeefarm/globals"
	"coffeefarm/metrics"
	"coffeefarm/models"
	"coffeefarm/views"
)

// DefaultCloseDelay is how long a successfully submitted form stays open so
// the status can be read.
const DefaultCloseDelay = 1500 * time.Millisecond

// Target is where a form writes. An empty Owner means nobody is signed in.
type Target struct {
	Store     db.Store
	Namespace string
	Owner     string
}

func (t Target) Path(kind models.Kind) db.Path {
	return db.Path{Namespace: t.Namespace, Owner: t.Owner, Kind: kind}
}

// Env is the read-only context codecs need: the clock and the current
// plots, employees and recipes.
type Env struct {
	Now       time.Time
	Loc       *time.Location
	Plots     []models.Plot
	Employees []models.Employee
	Recipes   []models.Recipe
}

func (e Env) Index() views.Index { return views.NewIndex(e.Plots, e.Employees) }

func (e Env) location() *time.Location {
	if e.Loc == nil {
		return time.Local
	}
	return e.Loc
}

func (e Env) today() string {
	now := e.Now
	if now.IsZero() {
		now = time.Now()
	}
	return now.In(e.location()).Format(globals.DateLayout)
}

// Messages are the user-facing status lines of one entity.
type Messages struct {
	Added         string
	Updated       string
	Deleted       string
	SaveError     string
	DeleteError   string
	ConfirmDelete string
}

// Codec converts between a stored entity T and its editable draft D.
type Codec[T any, D any] interface {
	Kind() models.Kind
	Messages() Messages
	Empty(env Env) D
	Draft(rec T, env Env) D
	// Build validates the draft; failures are *ValidationError.
	Build(d D, env Env) (T, error)
	// Merge carries stored fields the draft does not hold into an update.
	Merge(built, prev T) T
	// Timestamped entities get a server createdAt on insert.
	Timestamped() bool
}

// dependentsUpdater is implemented by codecs whose updates touch dependents.
// UpdateDependents runs before the record itself is written and is
// repeatable, so a failure leaves the record unchanged for a retry.
type dependentsUpdater[T any] interface {
	UpdateDependents(ctx context.Context, t Target, prev, next T) error
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Options tunes a form.
type Options struct {
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	// CloseDelay defaults to DefaultCloseDelay; negative closes at once.
	CloseDelay time.Duration
}

type Form[T interface{ Key() string }, D any] struct {
	codec   Codec[T, D]
	target  Target
	env     Env
	logger  *zap.Logger
	metrics *metrics.Metrics
	delay   time.Duration

	mu       sync.Mutex
	open     bool
	selected *T
	draft    D
	status   string
	timer    *time.Timer
}

func New[T interface{ Key() string }, D any](codec Codec[T, D], target Target, env Env, opts Options) *Form[T, D] {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	delay := opts.CloseDelay
	if delay == 0 {
		delay = DefaultCloseDelay
	}
	if delay < 0 {
		delay = 0
	}
	return &Form[T, D]{
		codec:   codec,
		target:  target,
		env:     env,
		logger:  logger.With(zap.String("kind", string(codec.Kind()))),
		metrics: opts.Metrics,
		delay:   delay,
	}
}

// Open starts editing selected, or a new record when selected is nil.
func (f *Form[T, D]) Open(selected *T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopTimer()
	f.open = true
	f.status = ""
	if selected == nil {
		f.selected = nil
		f.draft = f.codec.Empty(f.env)
		return
	}
	rec := *selected
	f.selected = &rec
	f.draft = f.codec.Draft(rec, f.env)
}

// Close discards the draft and the selection.
func (f *Form[T, D]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopTimer()
	f.open = false
	f.selected = nil
}

func (f *Form[T, D]) stopTimer() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

// Edit mutates the draft. Nothing is written until Submit.
func (f *Form[T, D]) Edit(fn func(d *D)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.draft)
}

func (f *Form[T, D]) Draft() D {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

func (f *Form[T, D]) Status() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *Form[T, D]) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// Selected returns the record being edited, if any.
func (f *Form[T, D]) Selected() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selected == nil {
		var zero T
		return zero, false
	}
	return *f.selected, true
}

func (f *Form[T, D]) setStatus(s string) {
	f.mu.Lock()
	f.status = s
	f.mu.Unlock()
}

// Submit validates the draft and writes it: an update when a record is
// selected, an insert otherwise. It returns the written id.
func (f *Form[T, D]) Submit(ctx context.Context) (string, error) {
	if f.target.Owner == "" {
		f.setStatus(StatusNoOwner)
		return "", ErrNoOwner
	}

	f.mu.Lock()
	draft := f.draft
	selected := f.selected
	f.mu.Unlock()

	rec, err := f.codec.Build(draft, f.env)
	if err != nil {
		f.setStatus(err.Error())
		return "", err
	}

	msgs := f.codec.Messages()
	p := f.target.Path(f.codec.Kind())
	store := f.target.Store

	var id, status string
	if selected != nil {
		id = (*selected).Key()
		rec = f.codec.Merge(rec, *selected)
		if hook, ok := f.codec.(dependentsUpdater[T]); ok {
			err = hook.UpdateDependents(ctx, f.target, *selected, rec)
		}
		if err == nil {
			err = store.Update(ctx, p, id, rec)
			f.metrics.Write(string(p.Kind), "update", err)
		}
		status = msgs.Updated
	} else {
		var opts []db.WriteOption
		if f.codec.Timestamped() {
			opts = append(opts, db.WithServerTimestamp("createdAt"))
		}
		id, err = store.Insert(ctx, p, rec, opts...)
		f.metrics.Write(string(p.Kind), "insert", err)
		status = msgs.Added
	}
	if err != nil {
		f.logger.Error("save failed", zap.String("owner", f.target.Owner), zap.Error(err))
		status = msgs.SaveError + ": " + err.Error()
		f.setStatus(status)
		return "", &WriteError{Op: "save " + string(p.Kind), Status: status, Err: err}
	}

	f.mu.Lock()
	f.status = status
	f.scheduleClose()
	f.mu.Unlock()
	return id, nil
}

// scheduleClose must be called with f.mu held.
func (f *Form[T, D]) scheduleClose() {
	f.stopTimer()
	if f.delay == 0 {
		f.open = false
		f.selected = nil
		return
	}
	f.timer = time.AfterFunc(f.delay, f.Close)
}

// Delete removes id after c approves. A declined or missing confirmation
// makes no store call and reports false.
func (f *Form[T, D]) Delete(ctx context.Context, id string, c Confirmer) (bool, error) {
	if f.target.Owner == "" {
		f.setStatus(StatusNoOwner)
		return false, ErrNoOwner
	}
	msgs := f.codec.Messages()
	if c == nil || !c.Confirm(msgs.ConfirmDelete) {
		return false, nil
	}

	p := f.target.Path(f.codec.Kind())
	err := f.target.Store.Delete(ctx, p, id)
	f.metrics.Write(string(p.Kind), "delete", err)
	if err != nil {
		f.logger.Error("delete failed", zap.String("owner", f.target.Owner), zap.String("id", id), zap.Error(err))
		status := msgs.DeleteError + ": " + err.Error()
		f.setStatus(status)
		return false, &WriteError{Op: "delete " + string(p.Kind), Status: status, Err: err}
	}
	f.setStatus(msgs.Deleted)
	return true, nil
}
