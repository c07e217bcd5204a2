package escrow

import "errors"

// Stable failure kinds surfaced verbatim to callers; downstream UIs and the
// audit log key off these strings.
var (
	ErrEscrowNotFound    = errors.New("escrow: not found")
	ErrInvalidAmount     = errors.New("escrow: amount must be positive")
	ErrInvalidBuyer      = errors.New("escrow: buyer must not be the null identity")
	ErrInvalidSeller     = errors.New("escrow: seller must not be the null identity")
	ErrInvalidDeadline   = errors.New("escrow: delivery deadline must be in the future")
	ErrUnauthorized      = errors.New("escrow: unauthorized caller")
	ErrInvalidStatus     = errors.New("escrow: invalid status for transition")
	ErrNotInDispute      = errors.New("escrow: not in dispute")
	ErrTooEarly          = errors.New("escrow: grace period has not elapsed")
	ErrDeadlinePassed    = errors.New("escrow: delivery deadline has passed")
	ErrInsufficientFunds = errors.New("escrow: insufficient balance")

	errNilState = errors.New("escrow engine: state not configured")
	errNilFees  = errors.New("escrow engine: fee calculator not configured")
	errNilVault = errors.New("escrow engine: custody vault not configured")
)
