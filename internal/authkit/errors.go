package authkit

import "errors"

var (
	// ErrMissingToken indicates the Authorization header was absent or not of the Bearer form.
	ErrMissingToken = errors.New("auth.missing_token")
	// ErrInvalidToken indicates the access token failed signature, shape, or expiry checks.
	ErrInvalidToken = errors.New("auth.invalid_token")
	// ErrUserNotFound indicates the token subject no longer resolves to a user record.
	ErrUserNotFound = errors.New("auth.user_not_found")
	// ErrAccountInactive indicates the user record exists but has been deactivated.
	ErrAccountInactive = errors.New("auth.account_inactive")
	// ErrInvalidCredentials indicates an unknown email or a non-matching password.
	ErrInvalidCredentials = errors.New("auth.invalid_credentials")
	// ErrInvalidSession indicates the refresh session is missing, expired, or revoked.
	ErrInvalidSession = errors.New("auth.invalid_session")
	// ErrUnauthenticated indicates no identity was attached to the request context.
	ErrUnauthenticated = errors.New("auth.unauthenticated")
	// ErrForbidden indicates the caller's role is outside the operation's allow-list.
	ErrForbidden = errors.New("auth.forbidden")
	// ErrEmailTaken indicates a registration attempt with an email already in use.
	ErrEmailTaken = errors.New("auth.email_taken")
)
