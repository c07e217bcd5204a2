package presale

import (
	"math/big"
	"time"

	"harvestmart/core/events"
	nativecommon "harvestmart/native/common"
)

// RoleMarketAdmin gates presale creation, allow-list edits and the
// per-presale kill-switch.
const RoleMarketAdmin = "ROLE_MARKET_ADMIN"

const moduleName = nativecommon.ModulePresale

// BuyerBook is the per-(presale, buyer) cumulative units side table,
// borrowed for the duration of one mutation. Writes become durable together
// with the presale record when the mutation commits.
type BuyerBook interface {
	Units(buyer [20]byte) uint64
	SetUnits(buyer [20]byte, units uint64)
}

type engineState interface {
	PresaleNew(p *Presale) (uint64, error)
	PresaleGet(id uint64) (*Presale, bool)
	// PresaleMutate runs fn while holding the record's lock. The record and
	// buyer book are persisted only when fn returns nil; on error no write
	// becomes visible.
	PresaleMutate(id uint64, fn func(p *Presale, buyers BuyerBook) error) error
	BuyerUnits(presaleID uint64, buyer [20]byte) (uint64, error)
	HasRole(role string, addr [20]byte) bool
}

// Engine is the presale allocation engine: the only writer of remaining
// supply counters and per-buyer totals.
type Engine struct {
	state   engineState
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64
}

// NewEngine creates an allocation engine with a no-op emitter. Callers
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the ledger backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses configures the operator pause switches consulted before every
// mutating operation.
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

func (e *Engine) emit(evt *presaleEvent) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(*evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Create allocates a new presale record. Only market admins may create
// presales; validation failures leave no trace in the ledger.
func (e *Engine) Create(caller [20]byte, windowStart, windowEnd int64, unitPrice *big.Int, minPurchase, maxPurchase, totalSupply uint64, eligibilityRequired bool) (*Presale, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !e.state.HasRole(RoleMarketAdmin, caller) {
		return nil, ErrUnauthorized
	}
	if windowStart >= windowEnd {
		return nil, ErrInvalidTimeRange
	}
	if minPurchase > maxPurchase {
		return nil, ErrInvalidPurchaseLimits
	}
	if totalSupply == 0 {
		return nil, ErrInvalidSupply
	}
	if unitPrice == nil || unitPrice.Sign() <= 0 {
		return nil, ErrInvalidUnitPrice
	}
	record := &Presale{
		WindowStart:         windowStart,
		WindowEnd:           windowEnd,
		UnitPrice:           new(big.Int).Set(unitPrice),
		MinPurchase:         minPurchase,
		MaxPurchase:         maxPurchase,
		TotalSupply:         totalSupply,
		EligibilityRequired: eligibilityRequired,
		EligibleBuyers:      make(map[[20]byte]struct{}),
		Active:              true,
		CreatedAt:           e.now(),
	}
	id, err := e.state.PresaleNew(record)
	if err != nil {
		return nil, err
	}
	record.ID = id
	e.emit(&presaleEvent{evt: NewCreatedEvent(record)})
	return record.Clone(), nil
}

// Purchase validates and atomically records an allocation, returning the
// overpayment owed back to the buyer. The validation order is a contract:
// activity, window, eligibility, purchase bounds, supply, then payment; the
// first failing check is the one reported.
func (e *Engine) Purchase(presaleID uint64, buyer [20]byte, units uint64, tendered *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	now := e.now()
	var refundDue *big.Int
	var snapshot *Presale
	var cost *big.Int
	err := e.state.PresaleMutate(presaleID, func(p *Presale, buyers BuyerBook) error {
		if !p.Active {
			return ErrPresaleInactive
		}
		if now < p.WindowStart {
			return ErrPresaleNotStarted
		}
		if now > p.WindowEnd {
			return ErrPresaleEnded
		}
		if !p.Eligible(buyer) {
			return ErrNotEligible
		}
		if units < p.MinPurchase {
			return ErrBelowMinimum
		}
		// Subtraction form so the bounds cannot wrap on uint64 overflow.
		bought := buyers.Units(buyer)
		if bought > p.MaxPurchase || units > p.MaxPurchase-bought {
			return ErrExceedsMaximum
		}
		if units > p.Remaining() {
			return ErrExceedsSupply
		}
		cost = p.Cost(units)
		if tendered == nil || tendered.Cmp(cost) < 0 {
			return ErrInsufficientPayment
		}
		p.SoldSupply += units
		buyers.SetUnits(buyer, bought+units)
		refundDue = new(big.Int).Sub(tendered, cost)
		snapshot = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(&presaleEvent{evt: NewPurchaseRecordedEvent(snapshot, buyer, units, cost)})
	return refundDue, nil
}

// Refund winds down a buyer's position on a failed presale: the presale must
// be deactivated and past its window. It returns the amount owed and zeroes
// the buyer's recorded units. Supply is not restored; the presale is being
// wound down, not reopened.
func (e *Engine) Refund(presaleID uint64, buyer [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	now := e.now()
	var owed *big.Int
	var units uint64
	var snapshot *Presale
	err := e.state.PresaleMutate(presaleID, func(p *Presale, buyers BuyerBook) error {
		if p.Active || now <= p.WindowEnd {
			return ErrRefundUnavailable
		}
		units = buyers.Units(buyer)
		if units == 0 {
			return ErrNoPurchaseFound
		}
		owed = p.Cost(units)
		buyers.SetUnits(buyer, 0)
		snapshot = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(&presaleEvent{evt: NewRefundedEvent(snapshot, buyer, units, owed)})
	return owed, nil
}

// AddToWhitelist places buyers on the presale's allow-list. The edit is
// idempotent; the returned count covers newly added entries only.
func (e *Engine) AddToWhitelist(presaleID uint64, caller [20]byte, buyers [][20]byte) (int, error) {
	return e.editWhitelist(presaleID, caller, buyers, true)
}

// RemoveFromWhitelist removes buyers from the allow-list. The returned count
// covers entries that were actually present.
func (e *Engine) RemoveFromWhitelist(presaleID uint64, caller [20]byte, buyers [][20]byte) (int, error) {
	return e.editWhitelist(presaleID, caller, buyers, false)
}

func (e *Engine) editWhitelist(presaleID uint64, caller [20]byte, buyers [][20]byte, add bool) (int, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if !e.state.HasRole(RoleMarketAdmin, caller) {
		return 0, ErrUnauthorized
	}
	changed := 0
	var snapshot *Presale
	err := e.state.PresaleMutate(presaleID, func(p *Presale, _ BuyerBook) error {
		if p.EligibleBuyers == nil {
			p.EligibleBuyers = make(map[[20]byte]struct{})
		}
		for _, buyer := range buyers {
			_, present := p.EligibleBuyers[buyer]
			if add && !present {
				p.EligibleBuyers[buyer] = struct{}{}
				changed++
			}
			if !add && present {
				delete(p.EligibleBuyers, buyer)
				changed++
			}
		}
		snapshot = p.Clone()
		return nil
	})
	if err != nil {
		return 0, err
	}
	added, removed := changed, 0
	if !add {
		added, removed = 0, changed
	}
	e.emit(&presaleEvent{evt: NewWhitelistUpdatedEvent(snapshot, added, removed)})
	return changed, nil
}

// SetActive toggles the operator kill-switch, independent of the time
// window. Deactivating a presale after its window closes opens the refund
// path.
func (e *Engine) SetActive(presaleID uint64, caller [20]byte, active bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !e.state.HasRole(RoleMarketAdmin, caller) {
		return ErrUnauthorized
	}
	var snapshot *Presale
	err := e.state.PresaleMutate(presaleID, func(p *Presale, _ BuyerBook) error {
		p.Active = active
		snapshot = p.Clone()
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(&presaleEvent{evt: NewStatusChangedEvent(snapshot)})
	return nil
}

// Get returns a copy of the stored record.
func (e *Engine) Get(presaleID uint64) (*Presale, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	record, ok := e.state.PresaleGet(presaleID)
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// BuyerUnits returns the cumulative units recorded for the buyer.
func (e *Engine) BuyerUnits(presaleID uint64, buyer [20]byte) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.BuyerUnits(presaleID, buyer)
}
