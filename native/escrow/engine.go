package escrow

import (
	"errors"
	"math/big"
	"time"

	"harvestmart/core/events"
	"harvestmart/core/types"
	nativecommon "harvestmart/native/common"
	"harvestmart/native/fees"
)

// RoleArbiter gates dispute resolution.
const RoleArbiter = "ROLE_ARBITER"

const moduleName = nativecommon.ModuleEscrow

// DefaultGracePeriod is the reference window, after the delivery deadline,
// before anyone may trigger the permissionless release.
const DefaultGracePeriod int64 = 7 * 24 * 60 * 60

type engineState interface {
	EscrowNew(e *Escrow) (uint64, error)
	EscrowGet(id uint64) (*Escrow, bool)
	// EscrowMutate runs fn while holding the record's lock; the record is
	// persisted only when fn returns nil.
	EscrowMutate(id uint64, fn func(e *Escrow) error) error
	// EscrowSeq returns the highest assigned escrow id.
	EscrowSeq() uint64
	// Transfer applies the legs atomically: every leg settles or none do.
	Transfer(legs ...types.TransferLeg) error
	HasRole(role string, addr [20]byte) bool
}

// Engine drives custody records through their one-way lifecycle. It is the
// only writer of escrow status.
type Engine struct {
	state   engineState
	fees    *fees.Calculator
	emitter events.Emitter
	pauses  nativecommon.PauseView
	vault   [20]byte
	grace   int64
	nowFn   func() int64
}

// NewEngine creates an escrow engine with a no-op emitter and the reference
// grace period. Callers override collaborators via the Set* methods.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		grace:   DefaultGracePeriod,
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the ledger backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetFees configures the platform fee calculator consulted at creation time.
func (e *Engine) SetFees(calc *fees.Calculator) { e.fees = calc }

// SetVault configures the custody account that holds locked funds.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// SetGracePeriod overrides the auto-release grace period, in seconds.
// Non-positive values restore the default.
func (e *Engine) SetGracePeriod(seconds int64) {
	if seconds <= 0 {
		e.grace = DefaultGracePeriod
		return
	}
	e.grace = seconds
}

// SetPauses configures the operator pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.fees == nil {
		return errNilFees
	}
	if e.vault == ([20]byte{}) {
		return errNilVault
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

// Create locks the buyer's payment into the custody vault and persists a new
// Active record. Validation failures leave balances untouched.
func (e *Engine) Create(buyer, seller [20]byte, itemRef string, deliveryDeadline int64, amount *big.Int) (*Escrow, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if seller == ([20]byte{}) {
		return nil, ErrInvalidSeller
	}
	if buyer == ([20]byte{}) {
		return nil, ErrInvalidBuyer
	}
	if deliveryDeadline <= e.now() {
		return nil, ErrInvalidDeadline
	}
	locked := new(big.Int).Set(amount)
	if err := e.state.Transfer(types.TransferLeg{From: buyer, To: e.vault, Amount: locked}); err != nil {
		return nil, err
	}
	record := &Escrow{
		Buyer:            buyer,
		Seller:           seller,
		Amount:           locked,
		FeeBps:           e.fees.FeeRate(),
		ItemRef:          itemRef,
		DeliveryDeadline: deliveryDeadline,
		CreatedAt:        e.now(),
		Status:           StatusActive,
	}
	id, err := e.state.EscrowNew(record)
	if err != nil {
		// Unlock the funds; the record was never persisted.
		_ = e.state.Transfer(types.TransferLeg{From: e.vault, To: buyer, Amount: locked})
		return nil, err
	}
	record.ID = id
	e.emit(NewCreatedEvent(record))
	return record.Clone(), nil
}

// ConfirmDelivery settles an Active escrow in favour of the seller: fee to
// the collector, remainder to the seller, status to Completed. Only the
// buyer may confirm. The payouts and the transition commit together; if the
// transfer fails the escrow remains Active.
func (e *Engine) ConfirmDelivery(id uint64, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	var settled *Escrow
	err := e.state.EscrowMutate(id, func(esc *Escrow) error {
		if caller != esc.Buyer {
			return ErrUnauthorized
		}
		if esc.Status != StatusActive {
			return ErrInvalidStatus
		}
		if err := e.payOut(esc); err != nil {
			return err
		}
		esc.Status = StatusCompleted
		settled = esc.Clone()
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(NewDeliveryConfirmedEvent(settled))
	return nil
}

// AutoRelease enacts the timeout rule: once the delivery deadline plus the
// grace period has elapsed without a dispute, anyone may trigger the same
// payout as ConfirmDelivery. It enacts a rule, not a privileged decision, so
// there is no caller check.
func (e *Engine) AutoRelease(id uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	now := e.now()
	var settled *Escrow
	err := e.state.EscrowMutate(id, func(esc *Escrow) error {
		if esc.Status != StatusActive {
			return ErrInvalidStatus
		}
		// Subtraction form so a deadline near MaxInt64 cannot wrap the sum.
		if now-e.grace < esc.DeliveryDeadline {
			return ErrTooEarly
		}
		if err := e.payOut(esc); err != nil {
			return err
		}
		esc.Status = StatusCompleted
		settled = esc.Clone()
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(NewDeliveryConfirmedEvent(settled))
	return nil
}

// SweepExpired walks every escrow and auto-releases the ones whose grace
// period has elapsed, returning the released ids. Records that are not
// releasable yet are skipped silently; the sweep is idempotent.
func (e *Engine) SweepExpired() ([]uint64, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var released []uint64
	for id := uint64(1); id <= e.state.EscrowSeq(); id++ {
		err := e.AutoRelease(id)
		switch {
		case err == nil:
			released = append(released, id)
		case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrTooEarly), errors.Is(err, ErrEscrowNotFound):
			continue
		default:
			return released, err
		}
	}
	return released, nil
}

// RequestRefund raises a dispute. Only the buyer may dispute, only while the
// record is Active, and only before the delivery deadline has lapsed.
// Between the deadline and deadline+grace neither dispute nor auto-release
// is available; that dead zone is contractual.
func (e *Engine) RequestRefund(id uint64, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	now := e.now()
	var disputed *Escrow
	err := e.state.EscrowMutate(id, func(esc *Escrow) error {
		if caller != esc.Buyer {
			return ErrUnauthorized
		}
		if esc.Status != StatusActive {
			return ErrInvalidStatus
		}
		if now > esc.DeliveryDeadline {
			return ErrDeadlinePassed
		}
		esc.Status = StatusDisputed
		disputed = esc.Clone()
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(NewDisputeRaisedEvent(disputed))
	return nil
}

// ResolveDispute settles a Disputed escrow according to the arbiter verdict:
// a full refund to the buyer, or the standard fee/seller payout.
func (e *Engine) ResolveDispute(id uint64, caller [20]byte, buyerWins bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !e.state.HasRole(RoleArbiter, caller) {
		return ErrUnauthorized
	}
	var resolved *Escrow
	err := e.state.EscrowMutate(id, func(esc *Escrow) error {
		if esc.Status != StatusDisputed {
			return ErrNotInDispute
		}
		if buyerWins {
			refund := types.TransferLeg{From: e.vault, To: esc.Buyer, Amount: new(big.Int).Set(esc.Amount)}
			if err := e.state.Transfer(refund); err != nil {
				return err
			}
			esc.Status = StatusRefunded
		} else {
			if err := e.payOut(esc); err != nil {
				return err
			}
			esc.Status = StatusCompleted
		}
		resolved = esc.Clone()
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(NewDisputeResolvedEvent(resolved, buyerWins))
	if buyerWins {
		e.emit(NewRefundedEvent(resolved))
	}
	return nil
}

// Get returns a copy of the stored record.
func (e *Engine) Get(id uint64) (*Escrow, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	record, ok := e.state.EscrowGet(id)
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// ListByStatus returns copies of every record currently in the given status,
// in id order. Intended for the sweep operator and read surfaces.
func (e *Engine) ListByStatus(status Status) ([]*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var out []*Escrow
	for id := uint64(1); id <= e.state.EscrowSeq(); id++ {
		record, ok := e.state.EscrowGet(id)
		if !ok {
			continue
		}
		if record.Status == status {
			out = append(out, record.Clone())
		}
	}
	return out, nil
}

// payOut moves the fee to the collector and the remainder to the seller as
// one atomic batch. Zero-valued legs are skipped.
func (e *Engine) payOut(esc *Escrow) error {
	fee, net := fees.Split(esc.Amount, esc.FeeBps)
	legs := make([]types.TransferLeg, 0, 2)
	if net.Sign() > 0 {
		legs = append(legs, types.TransferLeg{From: e.vault, To: esc.Seller, Amount: net})
	}
	if fee.Sign() > 0 {
		legs = append(legs, types.TransferLeg{From: e.vault, To: e.fees.Collector(), Amount: fee})
	}
	if len(legs) == 0 {
		return nil
	}
	return e.state.Transfer(legs...)
}
