package forms

import (
	"errors"
	"strings"
)

// StatusNoOwner is shown when a write is attempted without an identity.
const StatusNoOwner = "Erro: Nenhum usuário autenticado."

// ErrNoOwner is returned by writes attempted without an identity. No store
// call is made.
var ErrNoOwner = errors.New(StatusNoOwner)

// ValidationError lists the fields whose input could not be read.
type ValidationError struct {
	Fields []string `json:"fields"`
}

func (e *ValidationError) Error() string {
	return "Erro: valor inválido em " + strings.Join(e.Fields, ", ")
}

// WriteError wraps a store failure with the operation it interrupted and the
// status line shown to the user.
type WriteError struct {
	Op     string
	Status string
	Err    error
}

func (e *WriteError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *WriteError) Unwrap() error { return e.Err }
