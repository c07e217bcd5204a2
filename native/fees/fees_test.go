package fees

import (
	"errors"
	"math/big"
	"testing"
)

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func TestFeeFloorsTowardZero(t *testing.T) {
	cases := []struct {
		amount  int64
		rateBps uint32
		want    int64
	}{
		{10_000, 250, 250},
		{100, 250, 2},
		{1, 250, 0},
		{0, 500, 0},
		{999, 0, 0},
		{10_000, 500, 500},
	}
	for _, tc := range cases {
		got := Fee(big.NewInt(tc.amount), tc.rateBps)
		if got.Int64() != tc.want {
			t.Fatalf("Fee(%d, %d) = %d, want %d", tc.amount, tc.rateBps, got.Int64(), tc.want)
		}
	}
	if Fee(nil, 250).Sign() != 0 {
		t.Fatal("nil amount must yield zero fee")
	}
}

func TestSplitIsExact(t *testing.T) {
	for _, amount := range []int64{1, 99, 100, 10_000, 123_456_789} {
		for rate := uint32(0); rate <= MaxFeeBps; rate += 125 {
			fee, net := Split(big.NewInt(amount), rate)
			sum := new(big.Int).Add(fee, net)
			if sum.Int64() != amount {
				t.Fatalf("Split(%d, %d): fee %s + net %s != amount", amount, rate, fee, net)
			}
			if fee.Sign() < 0 || net.Sign() < 0 {
				t.Fatalf("Split(%d, %d): negative part", amount, rate)
			}
		}
	}
}

func TestCalculatorRateCap(t *testing.T) {
	calc, err := NewCalculator(250, addr(0x01))
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	if err := calc.SetFeeRate(MaxFeeBps); err != nil {
		t.Fatalf("rate at cap must be accepted: %v", err)
	}
	if err := calc.SetFeeRate(MaxFeeBps + 1); !errors.Is(err, ErrFeeTooHigh) {
		t.Fatalf("expected ErrFeeTooHigh, got %v", err)
	}
	if calc.FeeRate() != MaxFeeBps {
		t.Fatalf("failed update must not change the rate, got %d", calc.FeeRate())
	}
	if _, err := NewCalculator(MaxFeeBps+1, addr(0x01)); !errors.Is(err, ErrFeeTooHigh) {
		t.Fatalf("expected ErrFeeTooHigh at construction, got %v", err)
	}
}

func TestCalculatorCollector(t *testing.T) {
	calc, err := NewCalculator(100, addr(0x01))
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	if err := calc.SetFeeCollector([20]byte{}); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	next := addr(0x02)
	if err := calc.SetFeeCollector(next); err != nil {
		t.Fatalf("SetFeeCollector: %v", err)
	}
	if calc.Collector() != next {
		t.Fatal("collector not updated")
	}
	if _, err := NewCalculator(100, [20]byte{}); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress at construction, got %v", err)
	}
}
