package fees

import (
	"errors"
	"math/big"
	"sync"
)

// MaxFeeBps is the platform-wide ceiling on the fee rate. Operators may
// lower the effective rate at any time but can never exceed the cap.
const MaxFeeBps uint32 = 500

const bpsDenominator int64 = 10_000

var (
	// ErrFeeTooHigh rejects fee rates above MaxFeeBps.
	ErrFeeTooHigh = errors.New("fees: rate exceeds platform cap")
	// ErrInvalidAddress rejects the null identity as a fee collector.
	ErrInvalidAddress = errors.New("fees: collector must not be the null identity")
)

// Fee computes floor(amount * rateBps / 10000). Nil or non-positive amounts
// yield zero; the caller is expected to have validated the rate against the
// platform cap.
func Fee(amount *big.Int, rateBps uint32) *big.Int {
	if amount == nil || amount.Sign() <= 0 || rateBps == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(rateBps)))
	return fee.Div(fee, big.NewInt(bpsDenominator))
}

// Split divides an amount into the platform fee and the seller remainder.
// The two parts always sum to the original amount exactly.
func Split(amount *big.Int, rateBps uint32) (fee, net *big.Int) {
	fee = Fee(amount, rateBps)
	if amount == nil {
		return fee, big.NewInt(0)
	}
	net = new(big.Int).Sub(amount, fee)
	return fee, net
}

// Calculator holds the mutable platform fee configuration: the active rate
// in basis points and the identity that collects fees. Reads and writes are
// safe for concurrent use.
type Calculator struct {
	mu        sync.RWMutex
	rateBps   uint32
	collector [20]byte
}

// NewCalculator validates and installs the initial fee configuration.
func NewCalculator(rateBps uint32, collector [20]byte) (*Calculator, error) {
	if rateBps > MaxFeeBps {
		return nil, ErrFeeTooHigh
	}
	if collector == ([20]byte{}) {
		return nil, ErrInvalidAddress
	}
	return &Calculator{rateBps: rateBps, collector: collector}, nil
}

// SetFeeRate installs a new rate, rejecting values above the platform cap.
func (c *Calculator) SetFeeRate(rateBps uint32) error {
	if rateBps > MaxFeeBps {
		return ErrFeeTooHigh
	}
	c.mu.Lock()
	c.rateBps = rateBps
	c.mu.Unlock()
	return nil
}

// SetFeeCollector installs a new collector identity.
func (c *Calculator) SetFeeCollector(addr [20]byte) error {
	if addr == ([20]byte{}) {
		return ErrInvalidAddress
	}
	c.mu.Lock()
	c.collector = addr
	c.mu.Unlock()
	return nil
}

// FeeRate returns the active rate in basis points.
func (c *Calculator) FeeRate() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rateBps
}

// Collector returns the identity receiving platform fees.
func (c *Calculator) Collector() [20]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collector
}
