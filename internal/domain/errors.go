package domain

import (
	"errors"
	"fmt"
)

// ErrNoCredentialAvailable indica que el pool no tiene ninguna credencial
// elegible. No se recupera internamente: el llamador debe exponerlo.
var ErrNoCredentialAvailable = errors.New("no credential available")

// ErrorCode clasifica los fallos de generación con códigos estables. Los
// códigos de rate limit y unauthorized coinciden con los que reporta el
// upstream en sus frames de error.
type ErrorCode string

const (
	CodeRateLimited  ErrorCode = "rate_limit_exceeded"
	CodeUnauthorized ErrorCode = "unauthorized"
	CodeBlocked      ErrorCode = "blocked"
	CodeConnection   ErrorCode = "connection_error"
	CodeTimeout      ErrorCode = "timeout"
	CodeIncomplete   ErrorCode = "incomplete_generation"
	CodeNoCredential ErrorCode = "no_credential_available"
)

// GenError es un fallo de generación clasificado. El código decide la
// política de reintento: rate limit y unauthorized rotan credencial, blocked
// rota bajo su propio presupuesto, el resto se expone de inmediato.
type GenError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// NewGenError construye un fallo clasificado
func NewGenError(code ErrorCode, message string) *GenError {
	return &GenError{Code: code, Message: message}
}

// WrapGenError clasifica un error subyacente conservando la causa
func WrapGenError(code ErrorCode, message string, err error) *GenError {
	return &GenError{Code: code, Message: message, Err: err}
}

func (e *GenError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *GenError) Unwrap() error {
	return e.Err
}

// CodeOf extrae el código clasificado de un error; cadena vacía si el error
// no lleva clasificación
func CodeOf(err error) ErrorCode {
	var ge *GenError
	if errors.As(err, &ge) {
		return ge.Code
	}
	if errors.Is(err, ErrNoCredentialAvailable) {
		return CodeNoCredential
	}
	return ""
}
