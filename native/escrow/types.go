package escrow

import (
	"fmt"
	"math/big"
)

// Status represents the lifecycle states of a custody record. Transitions
// form a one-way DAG: Active -> Completed, Active -> Disputed,
// Disputed -> Completed, Disputed -> Refunded. Completed and Refunded are
// terminal.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusCompleted
	StatusDisputed
	StatusRefunded
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusDisputed, StatusRefunded:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRefunded
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusDisputed:
		return "disputed"
	case StatusRefunded:
		return "refunded"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Escrow is one custody record: the buyer's payment held against a delivery
// deadline. Everything but Status is immutable after creation.
type Escrow struct {
	ID               uint64
	Buyer            [20]byte
	Seller           [20]byte
	Amount           *big.Int
	FeeBps           uint32
	ItemRef          string
	DeliveryDeadline int64
	CreatedAt        int64
	Status           Status
}

// Clone returns a deep copy so callers can mutate the copy without touching
// the stored record.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Sanitize validates the stored invariants of an escrow record and returns a
// normalised clone with a non-nil amount.
func Sanitize(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("nil escrow")
	}
	clone := e.Clone()
	if clone.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if clone.Seller == ([20]byte{}) {
		return nil, ErrInvalidSeller
	}
	if clone.Buyer == ([20]byte{}) {
		return nil, ErrInvalidBuyer
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("escrow: invalid status %d", clone.Status)
	}
	return clone, nil
}
