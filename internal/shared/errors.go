package shared

import "errors"

// ErrInvalidCredentials is the single login failure reported to clients,
// whatever the underlying cause.
var ErrInvalidCredentials = errors.New("invalid credentials")
