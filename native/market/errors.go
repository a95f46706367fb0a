package market

import "errors"

// Error kinds surfaced to callers. Every operation fails with one of these
// specific sentinels (possibly wrapped with context) so that front-ends can
// render actionable messages instead of a generic failure.
var (
	ErrNotAssetOwner       = errors.New("market: caller does not own the asset")
	ErrAlreadyListed       = errors.New("market: asset already has an active listing")
	ErrNotListed           = errors.New("market: listing is not active")
	ErrUnauthorized        = errors.New("market: unauthorized caller")
	ErrInsufficientPayment = errors.New("market: payment below listing price")
	ErrInvalidState        = errors.New("market: transition not allowed in current state")
	ErrAlreadyHeld         = errors.New("market: escrow entry already held")
	ErrNotHeld             = errors.New("market: escrow entry not held")
	ErrSplitMismatch       = errors.New("market: splits do not sum to held amount")
	ErrTimeoutNotReached   = errors.New("market: confirmation timeout not reached")
	ErrTransferFailed      = errors.New("market: asset transfer failed")
	ErrNotFound            = errors.New("market: not found")
)
