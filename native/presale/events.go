package presale

import (
	"math/big"
	"strconv"

	"harvestmart/core/types"
)

const (
	EventTypePresaleCreated   = "presale.created"
	EventTypePurchaseRecorded = "presale.purchase_recorded"
	EventTypePresaleRefunded  = "presale.refunded"
	EventTypeWhitelistUpdated = "presale.whitelist_updated"
	EventTypeStatusChanged    = "presale.status_changed"
)

type presaleEvent struct {
	evt *types.Event
}

func (e presaleEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e presaleEvent) Event() *types.Event { return e.evt }

// NewCreatedEvent returns the canonical payload for a newly created presale.
func NewCreatedEvent(p *Presale) *types.Event {
	attrs := presaleAttrs(p)
	return &types.Event{Type: EventTypePresaleCreated, Attributes: attrs}
}

// NewPurchaseRecordedEvent returns the payload emitted when an allocation is
// committed. Cost is the amount actually retained; any overpayment is
// reported back to the caller, never recorded here.
func NewPurchaseRecordedEvent(p *Presale, buyer [20]byte, units uint64, cost *big.Int) *types.Event {
	attrs := presaleAttrs(p)
	attrs["buyer"] = types.FormatAddress(buyer)
	attrs["units"] = strconv.FormatUint(units, 10)
	if cost != nil {
		attrs["cost"] = cost.String()
	}
	return &types.Event{Type: EventTypePurchaseRecorded, Attributes: attrs}
}

// NewRefundedEvent returns the payload emitted when a failed presale refunds
// a buyer's recorded units.
func NewRefundedEvent(p *Presale, buyer [20]byte, units uint64, owed *big.Int) *types.Event {
	attrs := presaleAttrs(p)
	attrs["buyer"] = types.FormatAddress(buyer)
	attrs["units"] = strconv.FormatUint(units, 10)
	if owed != nil {
		attrs["owed"] = owed.String()
	}
	return &types.Event{Type: EventTypePresaleRefunded, Attributes: attrs}
}

// NewWhitelistUpdatedEvent returns the payload for an allow-list edit.
func NewWhitelistUpdatedEvent(p *Presale, added, removed int) *types.Event {
	attrs := presaleAttrs(p)
	attrs["added"] = strconv.Itoa(added)
	attrs["removed"] = strconv.Itoa(removed)
	return &types.Event{Type: EventTypeWhitelistUpdated, Attributes: attrs}
}

// NewStatusChangedEvent returns the payload for an operator toggling the
// per-presale kill-switch.
func NewStatusChangedEvent(p *Presale) *types.Event {
	attrs := presaleAttrs(p)
	return &types.Event{Type: EventTypeStatusChanged, Attributes: attrs}
}

func presaleAttrs(p *Presale) map[string]string {
	attrs := make(map[string]string)
	if p == nil {
		return attrs
	}
	attrs["id"] = strconv.FormatUint(p.ID, 10)
	attrs["soldSupply"] = strconv.FormatUint(p.SoldSupply, 10)
	attrs["totalSupply"] = strconv.FormatUint(p.TotalSupply, 10)
	attrs["active"] = strconv.FormatBool(p.Active)
	if p.UnitPrice != nil {
		attrs["unitPrice"] = p.UnitPrice.String()
	}
	return attrs
}
