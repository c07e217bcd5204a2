package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"harvestmart/core/types"
	"harvestmart/native/escrow"
	"harvestmart/native/presale"
)

// ErrInsufficientBalance is returned when a transfer leg cannot be covered
// by the source account.
var ErrInsufficientBalance = errors.New("storage: insufficient balance")

const (
	keyEscrowSeq  = "escrow/seq"
	keyPresaleSeq = "presale/seq"
)

// Ledger is the durable store for escrow and presale records, account
// balances, roles and pause switches. Read-modify-write against one record
// id is serialized by a per-record lock; the mutation closure sees a private
// copy and its writes become visible in one batch only when it succeeds.
type Ledger struct {
	db Database

	seqMu     sync.Mutex
	accountMu sync.Mutex
	adminMu   sync.RWMutex

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewLedger wraps a Database into the marketplace ledger.
func NewLedger(db Database) *Ledger {
	return &Ledger{db: db, locks: make(map[string]*sync.Mutex)}
}

func (l *Ledger) lockFor(key string) *sync.Mutex {
	l.lockMu.Lock()
	defer l.lockMu.Unlock()
	mu, ok := l.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[key] = mu
	}
	return mu
}

func (l *Ledger) nextID(counterKey string) (uint64, error) {
	l.seqMu.Lock()
	defer l.seqMu.Unlock()
	current := uint64(0)
	raw, err := l.db.Get([]byte(counterKey))
	switch {
	case err == nil:
		current, err = strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("storage: corrupt counter %s: %w", counterKey, err)
		}
	case errors.Is(err, ErrKeyNotFound):
	default:
		return 0, err
	}
	next := current + 1
	if err := l.db.Put([]byte(counterKey), []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, err
	}
	return next, nil
}

func (l *Ledger) seq(counterKey string) uint64 {
	l.seqMu.Lock()
	defer l.seqMu.Unlock()
	raw, err := l.db.Get([]byte(counterKey))
	if err != nil {
		return 0
	}
	v, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// --- Escrow table ---

func escrowKey(id uint64) []byte {
	return []byte("escrow/" + strconv.FormatUint(id, 10))
}

// EscrowNew assigns the next sequential id and persists the record.
func (l *Ledger) EscrowNew(e *escrow.Escrow) (uint64, error) {
	sanitized, err := escrow.Sanitize(e)
	if err != nil {
		return 0, err
	}
	id, err := l.nextID(keyEscrowSeq)
	if err != nil {
		return 0, err
	}
	sanitized.ID = id
	raw, err := json.Marshal(sanitized)
	if err != nil {
		return 0, err
	}
	if err := l.db.Put(escrowKey(id), raw); err != nil {
		return 0, err
	}
	return id, nil
}

// EscrowGet loads a record by id.
func (l *Ledger) EscrowGet(id uint64) (*escrow.Escrow, bool) {
	raw, err := l.db.Get(escrowKey(id))
	if err != nil {
		return nil, false
	}
	record := new(escrow.Escrow)
	if err := json.Unmarshal(raw, record); err != nil {
		return nil, false
	}
	return record, true
}

// EscrowMutate runs fn against the stored record while holding that record's
// lock. The record is persisted only when fn returns nil.
func (l *Ledger) EscrowMutate(id uint64, fn func(e *escrow.Escrow) error) error {
	key := escrowKey(id)
	mu := l.lockFor(string(key))
	mu.Lock()
	defer mu.Unlock()

	record, ok := l.EscrowGet(id)
	if !ok {
		return escrow.ErrEscrowNotFound
	}
	if err := fn(record); err != nil {
		return err
	}
	sanitized, err := escrow.Sanitize(record)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sanitized)
	if err != nil {
		return err
	}
	return l.db.Put(key, raw)
}

// EscrowSeq returns the highest assigned escrow id.
func (l *Ledger) EscrowSeq() uint64 { return l.seq(keyEscrowSeq) }

// --- Presale table ---

func presaleKey(id uint64) []byte {
	return []byte("presale/" + strconv.FormatUint(id, 10))
}

func buyerKey(presaleID uint64, buyer [20]byte) []byte {
	return []byte("presale/" + strconv.FormatUint(presaleID, 10) + "/buyer/" + types.FormatAddress(buyer))
}

// PresaleNew assigns the next sequential id and persists the record.
func (l *Ledger) PresaleNew(p *presale.Presale) (uint64, error) {
	sanitized, err := presale.Sanitize(p)
	if err != nil {
		return 0, err
	}
	id, err := l.nextID(keyPresaleSeq)
	if err != nil {
		return 0, err
	}
	sanitized.ID = id
	raw, err := json.Marshal(sanitized)
	if err != nil {
		return 0, err
	}
	if err := l.db.Put(presaleKey(id), raw); err != nil {
		return 0, err
	}
	return id, nil
}

// PresaleGet loads a record by id.
func (l *Ledger) PresaleGet(id uint64) (*presale.Presale, bool) {
	raw, err := l.db.Get(presaleKey(id))
	if err != nil {
		return nil, false
	}
	record := new(presale.Presale)
	if err := json.Unmarshal(raw, record); err != nil {
		return nil, false
	}
	return record, true
}

// PresaleSeq returns the highest assigned presale id.
func (l *Ledger) PresaleSeq() uint64 { return l.seq(keyPresaleSeq) }

// ledgerBook lazily loads per-buyer totals and stages writes until the
// surrounding mutation commits.
type ledgerBook struct {
	ledger    *Ledger
	presaleID uint64
	loaded    map[[20]byte]uint64
	staged    map[[20]byte]uint64
}

func (b *ledgerBook) Units(buyer [20]byte) uint64 {
	if v, ok := b.staged[buyer]; ok {
		return v
	}
	if v, ok := b.loaded[buyer]; ok {
		return v
	}
	v := b.ledger.readBuyerUnits(b.presaleID, buyer)
	b.loaded[buyer] = v
	return v
}

func (b *ledgerBook) SetUnits(buyer [20]byte, units uint64) {
	b.staged[buyer] = units
}

func (l *Ledger) readBuyerUnits(presaleID uint64, buyer [20]byte) uint64 {
	raw, err := l.db.Get(buyerKey(presaleID, buyer))
	if err != nil {
		return 0
	}
	v, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// PresaleMutate runs fn against the stored record and its buyer side-table
// while holding the record's lock. The record and every staged side-table
// entry are written as one batch only when fn returns nil, so a concurrent
// operation never observes a partial allocation.
func (l *Ledger) PresaleMutate(id uint64, fn func(p *presale.Presale, buyers presale.BuyerBook) error) error {
	key := presaleKey(id)
	mu := l.lockFor(string(key))
	mu.Lock()
	defer mu.Unlock()

	record, ok := l.PresaleGet(id)
	if !ok {
		return presale.ErrPresaleNotFound
	}
	book := &ledgerBook{
		ledger:    l,
		presaleID: id,
		loaded:    make(map[[20]byte]uint64),
		staged:    make(map[[20]byte]uint64),
	}
	if err := fn(record, book); err != nil {
		return err
	}
	sanitized, err := presale.Sanitize(record)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sanitized)
	if err != nil {
		return err
	}
	batch := []KV{{Key: key, Value: raw}}
	for buyer, units := range book.staged {
		batch = append(batch, KV{
			Key:   buyerKey(id, buyer),
			Value: []byte(strconv.FormatUint(units, 10)),
		})
	}
	return l.db.WriteBatch(batch)
}

// BuyerUnits returns the cumulative units recorded for a buyer on a presale.
func (l *Ledger) BuyerUnits(presaleID uint64, buyer [20]byte) (uint64, error) {
	if _, ok := l.PresaleGet(presaleID); !ok {
		return 0, presale.ErrPresaleNotFound
	}
	return l.readBuyerUnits(presaleID, buyer), nil
}

// --- Accounts ---

func accountKey(addr [20]byte) []byte {
	return []byte("account/" + types.FormatAddress(addr))
}

type accountJSON struct {
	Nonce   uint64 `json:"nonce"`
	Balance string `json:"balance"`
}

func (l *Ledger) loadAccount(addr [20]byte) (*types.Account, error) {
	raw, err := l.db.Get(accountKey(addr))
	if errors.Is(err, ErrKeyNotFound) {
		return types.EnsureAccount(nil), nil
	}
	if err != nil {
		return nil, err
	}
	var in accountJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	acc := types.EnsureAccount(&types.Account{Nonce: in.Nonce})
	if _, ok := acc.Balance.SetString(in.Balance, 10); !ok {
		return nil, fmt.Errorf("storage: corrupt balance for %s", types.FormatAddress(addr))
	}
	return acc, nil
}

func marshalAccount(acc *types.Account) ([]byte, error) {
	acc = types.EnsureAccount(acc)
	return json.Marshal(accountJSON{Nonce: acc.Nonce, Balance: acc.Balance.String()})
}

// GetAccount returns the account for an identity; unknown identities have a
// zero balance.
func (l *Ledger) GetAccount(addr [20]byte) (*types.Account, error) {
	l.accountMu.Lock()
	defer l.accountMu.Unlock()
	return l.loadAccount(addr)
}

// PutAccount persists an account. Intended for funding flows and tests; the
// engines move value through Transfer.
func (l *Ledger) PutAccount(addr [20]byte, acc *types.Account) error {
	l.accountMu.Lock()
	defer l.accountMu.Unlock()
	raw, err := marshalAccount(acc)
	if err != nil {
		return err
	}
	return l.db.Put(accountKey(addr), raw)
}

// Transfer applies the legs atomically: every balance is validated against
// the staged state before any write, and the whole set lands in one batch.
func (l *Ledger) Transfer(legs ...types.TransferLeg) error {
	l.accountMu.Lock()
	defer l.accountMu.Unlock()

	staged := make(map[[20]byte]*types.Account)
	load := func(addr [20]byte) (*types.Account, error) {
		if acc, ok := staged[addr]; ok {
			return acc, nil
		}
		acc, err := l.loadAccount(addr)
		if err != nil {
			return nil, err
		}
		staged[addr] = acc
		return acc, nil
	}
	for _, leg := range legs {
		if leg.Amount == nil || leg.Amount.Sign() < 0 {
			return fmt.Errorf("storage: invalid transfer amount")
		}
		if leg.Amount.Sign() == 0 {
			continue
		}
		from, err := load(leg.From)
		if err != nil {
			return err
		}
		if from.Balance.Cmp(leg.Amount) < 0 {
			return ErrInsufficientBalance
		}
		to, err := load(leg.To)
		if err != nil {
			return err
		}
		from.Balance.Sub(from.Balance, leg.Amount)
		to.Balance.Add(to.Balance, leg.Amount)
	}
	batch := make([]KV, 0, len(staged))
	for addr, acc := range staged {
		raw, err := marshalAccount(acc)
		if err != nil {
			return err
		}
		batch = append(batch, KV{Key: accountKey(addr), Value: raw})
	}
	return l.db.WriteBatch(batch)
}

// --- Roles and pauses ---

func roleKey(role string, addr [20]byte) []byte {
	return []byte("role/" + role + "/" + types.FormatAddress(addr))
}

// GrantRole records a capability for an identity.
func (l *Ledger) GrantRole(role string, addr [20]byte) error {
	l.adminMu.Lock()
	defer l.adminMu.Unlock()
	return l.db.Put(roleKey(role, addr), []byte{1})
}

// RevokeRole removes a capability. Revocation is a tombstone write so the
// Database interface needs no delete primitive.
func (l *Ledger) RevokeRole(role string, addr [20]byte) error {
	l.adminMu.Lock()
	defer l.adminMu.Unlock()
	return l.db.Put(roleKey(role, addr), []byte{0})
}

// HasRole reports whether the identity holds the capability.
func (l *Ledger) HasRole(role string, addr [20]byte) bool {
	l.adminMu.RLock()
	defer l.adminMu.RUnlock()
	raw, err := l.db.Get(roleKey(role, addr))
	if err != nil {
		return false
	}
	return len(raw) == 1 && raw[0] == 1
}

func pauseKey(module string) []byte {
	return []byte("pause/" + module)
}

// SetPaused flips the operator kill-switch for a whole module.
func (l *Ledger) SetPaused(module string, paused bool) error {
	l.adminMu.Lock()
	defer l.adminMu.Unlock()
	value := []byte{0}
	if paused {
		value = []byte{1}
	}
	return l.db.Put(pauseKey(module), value)
}

// IsPaused implements the native/common PauseView.
func (l *Ledger) IsPaused(module string) bool {
	l.adminMu.RLock()
	defer l.adminMu.RUnlock()
	raw, err := l.db.Get(pauseKey(module))
	if err != nil {
		return false
	}
	return len(raw) == 1 && raw[0] == 1
}
