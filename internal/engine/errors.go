package engine

import "errors"

// Failure kinds surfaced by the engine. All are fatal to the current call;
// nothing is committed when one of these is returned.
var (
	ErrAlreadyRegistered     = errors.New("participant already registered")
	ErrNotRegistered         = errors.New("participant not registered")
	ErrUnauthorized          = errors.New("caller is not authenticated as the acting address")
	ErrSenderNotRegistered   = errors.New("sender is not a registered participant")
	ErrReceiverNotRegistered = errors.New("receiver is not a registered participant")
	ErrMaterialNotFound      = errors.New("material not found")
	ErrNotOwner              = errors.New("sender does not own the material")
	ErrCannotCollect         = errors.New("participant role cannot submit materials")
	ErrInvalidRole           = errors.New("unknown role")
)
