package presale

import "errors"

// Stable failure kinds surfaced verbatim to callers. Downstream UIs and the
// audit log key off these strings, so the text is part of the contract.
var (
	ErrUnauthorized          = errors.New("presale: unauthorized caller")
	ErrInvalidTimeRange      = errors.New("presale: window start must precede window end")
	ErrInvalidPurchaseLimits = errors.New("presale: minimum purchase exceeds maximum")
	ErrInvalidSupply         = errors.New("presale: total supply must be positive")
	ErrInvalidUnitPrice      = errors.New("presale: unit price must be positive")
	ErrPresaleNotFound       = errors.New("presale: not found")
	ErrPresaleInactive       = errors.New("presale: inactive")
	ErrPresaleNotStarted     = errors.New("presale: window has not opened")
	ErrPresaleEnded          = errors.New("presale: window has closed")
	ErrNotEligible           = errors.New("presale: buyer not on the allow-list")
	ErrBelowMinimum          = errors.New("presale: below minimum purchase")
	ErrExceedsMaximum        = errors.New("presale: exceeds per-buyer maximum")
	ErrExceedsSupply         = errors.New("presale: exceeds remaining supply")
	ErrInsufficientPayment   = errors.New("presale: tendered amount below cost")
	ErrNoPurchaseFound       = errors.New("presale: no purchase recorded for buyer")
	ErrRefundUnavailable     = errors.New("presale: refunds require a deactivated presale past its window")

	errNilState = errors.New("presale engine: state not configured")
)
