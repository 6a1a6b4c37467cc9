package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed    = fmt.Errorf("authentication failed")
	ErrInvalidState  = fmt.Errorf("invalid state parameter")
	ErrNoSession     = fmt.Errorf("no session")
	ErrInvalidCookie = fmt.Errorf("invalid session cookie")

	// Module loading errors
	ErrInvalidModule   = fmt.Errorf("invalid module")
	ErrUnsupportedFile = fmt.Errorf("unsupported module file")
	ErrUnknownAction   = fmt.Errorf("unknown action")

	// Persistence errors
	ErrModelNotFound   = fmt.Errorf("model not registered")
	ErrModelConflict   = fmt.Errorf("model already registered")
	ErrRecordNotFound  = fmt.Errorf("record not found")
	ErrConflict        = fmt.Errorf("record conflicts with an existing one")
	ErrSchemaDrift     = fmt.Errorf("table no longer matches model")
	ErrValidation      = fmt.Errorf("validation failed")
	ErrUnsupportedType = fmt.Errorf("unsupported field type")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
