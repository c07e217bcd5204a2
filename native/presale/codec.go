package presale

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"

	"harvestmart/core/types"
)

type presaleJSON struct {
	ID                  uint64   `json:"id"`
	WindowStart         int64    `json:"windowStart"`
	WindowEnd           int64    `json:"windowEnd"`
	UnitPrice           string   `json:"unitPrice"`
	MinPurchase         uint64   `json:"minPurchase"`
	MaxPurchase         uint64   `json:"maxPurchase"`
	TotalSupply         uint64   `json:"totalSupply"`
	SoldSupply          uint64   `json:"soldSupply"`
	EligibilityRequired bool     `json:"eligibilityRequired"`
	EligibleBuyers      []string `json:"eligibleBuyers,omitempty"`
	Active              bool     `json:"active"`
	CreatedAt           int64    `json:"createdAt"`
}

// MarshalJSON renders addresses as hex strings and the unit price as a
// decimal string. The allow-list is sorted so encodings are deterministic.
func (p *Presale) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	out := presaleJSON{
		ID:                  p.ID,
		WindowStart:         p.WindowStart,
		WindowEnd:           p.WindowEnd,
		UnitPrice:           "0",
		MinPurchase:         p.MinPurchase,
		MaxPurchase:         p.MaxPurchase,
		TotalSupply:         p.TotalSupply,
		SoldSupply:          p.SoldSupply,
		EligibilityRequired: p.EligibilityRequired,
		Active:              p.Active,
		CreatedAt:           p.CreatedAt,
	}
	if p.UnitPrice != nil {
		out.UnitPrice = p.UnitPrice.String()
	}
	if len(p.EligibleBuyers) > 0 {
		out.EligibleBuyers = make([]string, 0, len(p.EligibleBuyers))
		for addr := range p.EligibleBuyers {
			out.EligibleBuyers = append(out.EligibleBuyers, types.FormatAddress(addr))
		}
		sort.Strings(out.EligibleBuyers)
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (p *Presale) UnmarshalJSON(data []byte) error {
	var in presaleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	price, ok := new(big.Int).SetString(in.UnitPrice, 10)
	if !ok {
		return fmt.Errorf("presale: invalid unit price %q", in.UnitPrice)
	}
	eligible := make(map[[20]byte]struct{}, len(in.EligibleBuyers))
	for _, raw := range in.EligibleBuyers {
		addr, err := types.ParseAddress(raw)
		if err != nil {
			return fmt.Errorf("presale: allow-list entry: %w", err)
		}
		eligible[addr] = struct{}{}
	}
	*p = Presale{
		ID:                  in.ID,
		WindowStart:         in.WindowStart,
		WindowEnd:           in.WindowEnd,
		UnitPrice:           price,
		MinPurchase:         in.MinPurchase,
		MaxPurchase:         in.MaxPurchase,
		TotalSupply:         in.TotalSupply,
		SoldSupply:          in.SoldSupply,
		EligibilityRequired: in.EligibilityRequired,
		EligibleBuyers:      eligible,
		Active:              in.Active,
		CreatedAt:           in.CreatedAt,
	}
	return nil
}
