package escrow

import (
	"strconv"

	"harvestmart/core/types"
)

const (
	EventTypeEscrowCreated     = "escrow.created"
	EventTypeDeliveryConfirmed = "escrow.delivery_confirmed"
	EventTypeDisputeRaised     = "escrow.dispute_raised"
	EventTypeDisputeResolved   = "escrow.dispute_resolved"
	EventTypeEscrowRefunded    = "escrow.refunded"
)

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// NewCreatedEvent returns the canonical payload for a newly created custody
// record.
func NewCreatedEvent(e *Escrow) *types.Event {
	return &types.Event{Type: EventTypeEscrowCreated, Attributes: escrowAttrs(e)}
}

// NewDeliveryConfirmedEvent returns the payload emitted when funds are paid
// out to the seller. Manual confirmation and the permissionless auto-release
// emit the same event; the mechanism, not the stream, distinguishes them.
func NewDeliveryConfirmedEvent(e *Escrow) *types.Event {
	return &types.Event{Type: EventTypeDeliveryConfirmed, Attributes: escrowAttrs(e)}
}

// NewDisputeRaisedEvent returns the payload emitted when the buyer disputes
// delivery.
func NewDisputeRaisedEvent(e *Escrow) *types.Event {
	return &types.Event{Type: EventTypeDisputeRaised, Attributes: escrowAttrs(e)}
}

// NewDisputeResolvedEvent returns the payload emitted by an arbiter verdict.
func NewDisputeResolvedEvent(e *Escrow, buyerWins bool) *types.Event {
	attrs := escrowAttrs(e)
	attrs["buyerWins"] = strconv.FormatBool(buyerWins)
	return &types.Event{Type: EventTypeDisputeResolved, Attributes: attrs}
}

// NewRefundedEvent returns the payload emitted when the full amount is
// returned to the buyer.
func NewRefundedEvent(e *Escrow) *types.Event {
	return &types.Event{Type: EventTypeEscrowRefunded, Attributes: escrowAttrs(e)}
}

func escrowAttrs(e *Escrow) map[string]string {
	attrs := make(map[string]string)
	if e == nil {
		return attrs
	}
	attrs["id"] = strconv.FormatUint(e.ID, 10)
	attrs["buyer"] = types.FormatAddress(e.Buyer)
	attrs["seller"] = types.FormatAddress(e.Seller)
	attrs["feeBps"] = strconv.FormatUint(uint64(e.FeeBps), 10)
	attrs["deliveryDeadline"] = strconv.FormatInt(e.DeliveryDeadline, 10)
	attrs["status"] = e.Status.String()
	if e.Amount != nil {
		attrs["amount"] = e.Amount.String()
	}
	if e.ItemRef != "" {
		attrs["itemRef"] = e.ItemRef
	}
	return attrs
}
