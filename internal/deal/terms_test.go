package deal

import (
	"errors"
	"testing"
)

func TestComputeTermsDerivesValuation(t *testing.T) {
	terms, err := ComputeTerms(100000, 10, InstrumentEquity, "")
	if err != nil {
		t.Fatalf("ComputeTerms failed: %v", err)
	}
	if terms.ImpliedValuation != 1000000 {
		t.Fatalf("implied valuation = %v, want 1000000", terms.ImpliedValuation)
	}
	if terms.PostMoneyValuation != terms.ImpliedValuation {
		t.Fatalf("post-money valuation %v differs from implied %v", terms.PostMoneyValuation, terms.ImpliedValuation)
	}

	terms, err = ComputeTerms(100000, 8, InstrumentSAFE, "board seat")
	if err != nil {
		t.Fatalf("ComputeTerms failed: %v", err)
	}
	if terms.ImpliedValuation != 1250000 {
		t.Fatalf("implied valuation = %v, want 1250000", terms.ImpliedValuation)
	}
	if terms.Conditions != "board seat" {
		t.Fatalf("conditions not carried through: %q", terms.Conditions)
	}
}

func TestComputeTermsRejectsBadInputs(t *testing.T) {
	cases := []struct {
		name   string
		amount int64
		equity float64
	}{
		{name: "zero amount", amount: 0, equity: 10},
		{name: "negative amount", amount: -5, equity: 10},
		{name: "zero equity", amount: 100000, equity: 0},
		{name: "negative equity", amount: 100000, equity: -1},
		{name: "over 100 percent", amount: 100000, equity: 101},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ComputeTerms(tc.amount, tc.equity, InstrumentEquity, ""); !errors.Is(err, ErrInvalidTerms) {
				t.Fatalf("expected ErrInvalidTerms, got %v", err)
			}
		})
	}
}

func TestComputeTermsDefaultsInstrument(t *testing.T) {
	terms, err := ComputeTerms(50000, 5, "", "")
	if err != nil {
		t.Fatalf("ComputeTerms failed: %v", err)
	}
	if terms.InstrumentType != InstrumentEquity {
		t.Fatalf("instrument = %q, want EQUITY", terms.InstrumentType)
	}
	if _, err := ComputeTerms(50000, 5, "WARRANT", ""); !errors.Is(err, ErrInvalidTerms) {
		t.Fatalf("unknown instrument should be rejected, got %v", err)
	}
}

func TestRoleOpposite(t *testing.T) {
	if RoleFounder.Opposite() != RoleInvestor {
		t.Fatal("founder's counterpart should be investor")
	}
	if RoleInvestor.Opposite() != RoleFounder {
		t.Fatal("investor's counterpart should be founder")
	}
}
