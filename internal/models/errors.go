package models

import "errors"

var (
	// ErrFetchTimeout is returned when a store did not respond in time.
	ErrFetchTimeout = errors.New("store fetch timed out")
	// ErrParseFailure is returned when a store page could not be turned into variants.
	ErrParseFailure = errors.New("store page could not be parsed")
	// ErrVariantMissing is returned when a product parsed but the tracked variant is gone.
	ErrVariantMissing = errors.New("variant missing from product")

	ErrDeliveryTransient = errors.New("delivery failed temporarily")
	// ErrRecipientGone means the subscriber can no longer be reached and should be disabled.
	ErrRecipientGone = errors.New("recipient unreachable")

	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrItemExists is returned when attempting to create an item that already exists.
	ErrItemExists = errors.New("tracked item already exists")
	ErrNotFound   = errors.New("not found")

	ErrItemLimit     = errors.New("tracked item limit reached")
	ErrUnknownStore  = errors.New("unknown store")
	ErrStoreInactive = errors.New("store is not active")
)
