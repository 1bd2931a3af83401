package httpapi

const (
	ErrInvalidJSON      = "invalid json"
	ErrMissingID        = "missing id"
	ErrDependency       = "dependency error"
	ErrNotFound         = "not found"
	ErrInvalidSignature = "invalid signature"
	ErrInvalidStatus    = "invalid status"
)
