package models

import "github.com/pkg/errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("concurrent modification")
	ErrPersistence  = errors.New("persistence failure")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
)

// opError помечает ошибку видом (ErrPersistence и т.п.), сохраняя исходную причину.
type opError struct {
	kind error
	op   string
	err  error
}

func (e *opError) Error() string {
	if e.err == nil {
		return e.op + ": " + e.kind.Error()
	}
	return e.op + ": " + e.kind.Error() + ": " + e.err.Error()
}

func (e *opError) Is(target error) bool { return target == e.kind }

func (e *opError) Unwrap() error { return e.err }

// Persistence: запись отклонена хранилищем (constraint, соединение, конфликт).
func Persistence(op string, err error) error {
	return &opError{kind: ErrPersistence, op: op, err: err}
}

func NotFound(op string) error {
	return &opError{kind: ErrNotFound, op: op}
}

func InvalidInput(msg string) error {
	return &opError{kind: ErrInvalidInput, op: msg}
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Unreadable: чтение не удалось; для вызывающего это тот же not found, причина сохраняется.
func Unreadable(op string, err error) error {
	return &opError{kind: ErrNotFound, op: op, err: err}
}
