package presale

import (
	"fmt"
	"math/big"
)

// Presale captures one time-boxed, supply-bounded sale of future-harvest
// units at a fixed price. The window, price, limits and supply are immutable
// after creation; SoldSupply, the allow-list and the Active switch are the
// only mutable fields.
type Presale struct {
	ID                  uint64
	WindowStart         int64
	WindowEnd           int64
	UnitPrice           *big.Int
	MinPurchase         uint64
	MaxPurchase         uint64
	TotalSupply         uint64
	SoldSupply          uint64
	EligibilityRequired bool
	EligibleBuyers      map[[20]byte]struct{}
	Active              bool
	CreatedAt           int64
}

// Clone returns a deep copy so callers can mutate the copy without touching
// the stored record.
func (p *Presale) Clone() *Presale {
	if p == nil {
		return nil
	}
	clone := *p
	if p.UnitPrice != nil {
		clone.UnitPrice = new(big.Int).Set(p.UnitPrice)
	} else {
		clone.UnitPrice = big.NewInt(0)
	}
	if p.EligibleBuyers != nil {
		clone.EligibleBuyers = make(map[[20]byte]struct{}, len(p.EligibleBuyers))
		for addr := range p.EligibleBuyers {
			clone.EligibleBuyers[addr] = struct{}{}
		}
	}
	return &clone
}

// Remaining reports the unsold units.
func (p *Presale) Remaining() uint64 {
	if p == nil || p.SoldSupply >= p.TotalSupply {
		return 0
	}
	return p.TotalSupply - p.SoldSupply
}

// Eligible reports whether the buyer may participate. Presales without an
// eligibility requirement admit everyone.
func (p *Presale) Eligible(buyer [20]byte) bool {
	if p == nil {
		return false
	}
	if !p.EligibilityRequired {
		return true
	}
	_, ok := p.EligibleBuyers[buyer]
	return ok
}

// Cost returns units * unit price.
func (p *Presale) Cost(units uint64) *big.Int {
	if p == nil || p.UnitPrice == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(p.UnitPrice, new(big.Int).SetUint64(units))
}

// Sanitize validates the stored invariants of a presale record and returns a
// normalised clone with non-nil price and allow-list fields.
func Sanitize(p *Presale) (*Presale, error) {
	if p == nil {
		return nil, fmt.Errorf("nil presale")
	}
	clone := p.Clone()
	if clone.WindowStart >= clone.WindowEnd {
		return nil, ErrInvalidTimeRange
	}
	if clone.MinPurchase > clone.MaxPurchase {
		return nil, ErrInvalidPurchaseLimits
	}
	if clone.TotalSupply == 0 {
		return nil, ErrInvalidSupply
	}
	if clone.UnitPrice.Sign() <= 0 {
		return nil, ErrInvalidUnitPrice
	}
	if clone.SoldSupply > clone.TotalSupply {
		return nil, fmt.Errorf("presale: sold supply %d exceeds total %d", clone.SoldSupply, clone.TotalSupply)
	}
	if clone.EligibleBuyers == nil {
		clone.EligibleBuyers = make(map[[20]byte]struct{})
	}
	return clone, nil
}
