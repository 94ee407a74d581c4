package portal

import (
	"errors"
	"fmt"
)

// AuthError means the login or token-refresh flow failed. Callers
// surface it to the user instead of retrying, so an abandoned browser
// prompt cannot loop forever.
type AuthError struct {
	Portal string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Portal, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NotFoundError means the portal reported the item or folder missing.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("item %s not found", e.ID)
}

// RemoteError carries an API-level error payload returned by the
// portal. The message is passed through verbatim.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("portal error %d: %s", e.Code, e.Message)
}

// NetworkError is a transport-level failure. Read operations retry it
// silently once; writes do not.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// InvalidContentError means a local edit is not valid JSON and was
// never sent to the portal.
type InvalidContentError struct {
	ItemID string
	Err    error
}

func (e *InvalidContentError) Error() string {
	return fmt.Sprintf("invalid content for %s: %v", e.ItemID, e.Err)
}

func (e *InvalidContentError) Unwrap() error { return e.Err }

// UnsupportedError signals an operation the portal interface does not
// allow, such as deleting a folder.
type UnsupportedError struct {
	Op string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s is not supported", e.Op)
}

// AsAuth checks whether err is an AuthError.
func AsAuth(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// AsNotFound checks whether err is a NotFoundError.
func AsNotFound(err error) (*NotFoundError, bool) {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf, true
	}
	return nil, false
}

// AsRemote checks whether err is a RemoteError.
func AsRemote(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// AsUnsupported checks whether err is an UnsupportedError.
func AsUnsupported(err error) (*UnsupportedError, bool) {
	var ue *UnsupportedError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
