package escrow

import (
	"encoding/json"
	"fmt"
	"math/big"

	"harvestmart/core/types"
)

type escrowJSON struct {
	ID               uint64 `json:"id"`
	Buyer            string `json:"buyer"`
	Seller           string `json:"seller"`
	Amount           string `json:"amount"`
	FeeBps           uint32 `json:"feeBps"`
	ItemRef          string `json:"itemRef"`
	DeliveryDeadline int64  `json:"deliveryDeadline"`
	CreatedAt        int64  `json:"createdAt"`
	Status           uint8  `json:"status"`
}

// MarshalJSON renders identities as hex strings and the amount as a decimal
// string.
func (e *Escrow) MarshalJSON() ([]byte, error) {
	if e == nil {
		return []byte("null"), nil
	}
	amount := "0"
	if e.Amount != nil {
		amount = e.Amount.String()
	}
	return json.Marshal(escrowJSON{
		ID:               e.ID,
		Buyer:            types.FormatAddress(e.Buyer),
		Seller:           types.FormatAddress(e.Seller),
		Amount:           amount,
		FeeBps:           e.FeeBps,
		ItemRef:          e.ItemRef,
		DeliveryDeadline: e.DeliveryDeadline,
		CreatedAt:        e.CreatedAt,
		Status:           uint8(e.Status),
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *Escrow) UnmarshalJSON(data []byte) error {
	var in escrowJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	buyer, err := types.ParseAddress(in.Buyer)
	if err != nil {
		return fmt.Errorf("escrow: buyer: %w", err)
	}
	seller, err := types.ParseAddress(in.Seller)
	if err != nil {
		return fmt.Errorf("escrow: seller: %w", err)
	}
	amount, ok := new(big.Int).SetString(in.Amount, 10)
	if !ok {
		return fmt.Errorf("escrow: invalid amount %q", in.Amount)
	}
	*e = Escrow{
		ID:               in.ID,
		Buyer:            buyer,
		Seller:           seller,
		Amount:           amount,
		FeeBps:           in.FeeBps,
		ItemRef:          in.ItemRef,
		DeliveryDeadline: in.DeliveryDeadline,
		CreatedAt:        in.CreatedAt,
		Status:           Status(in.Status),
	}
	return nil
}
