package services

import "errors"

// Sentinel errors returned by the service layer. Handlers map these onto
// HTTP status codes; everything else surfaces as an internal error.
var (
	ErrNotFound            = errors.New("resource not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUnauthorized        = errors.New("wallet does not own this resource")
	ErrSessionExpired      = errors.New("claim session expired")
	ErrCapacityExceeded    = errors.New("claim session at capacity")
	ErrAlreadyClaimed      = errors.New("device already claimed in this campaign")
	ErrOrganizerClaim      = errors.New("organizer cannot claim own campaign")
	ErrInsufficientFunding = errors.New("vault balance below required amount")
	ErrVaultMinted         = errors.New("vault already minted")
)
