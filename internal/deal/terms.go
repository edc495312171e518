package deal

import "errors"

type Instrument string

const (
	InstrumentEquity          Instrument = "EQUITY"
	InstrumentSAFE            Instrument = "SAFE"
	InstrumentConvertibleNote Instrument = "CONVERTIBLE_NOTE"
)

var ErrInvalidTerms = errors.New("invalid deal terms")

// Terms is an immutable snapshot of proposed financials. Valuation fields
// are always derived from amount and equity; ComputeTerms is the only
// constructor.
type Terms struct {
	InvestmentAmount   int64      `json:"investmentAmount"`
	EquityPercentage   float64    `json:"equityPercentage"`
	ImpliedValuation   float64    `json:"impliedValuation"`
	PostMoneyValuation float64    `json:"postMoneyValuation"`
	InstrumentType     Instrument `json:"instrumentType"`
	Conditions         string     `json:"conditions,omitempty"`
}

// ComputeTerms derives valuations from amount and equity. Zero or negative
// equity is rejected rather than producing a degenerate zero valuation.
func ComputeTerms(amount int64, equity float64, instrument Instrument, conditions string) (Terms, error) {
	if amount <= 0 {
		return Terms{}, ErrInvalidTerms
	}
	if equity <= 0 || equity > 100 {
		return Terms{}, ErrInvalidTerms
	}
	if instrument == "" {
		instrument = InstrumentEquity
	}
	if _, ok := NormalizeInstrument(string(instrument)); !ok {
		return Terms{}, ErrInvalidTerms
	}
	implied := float64(amount) / equity * 100
	return Terms{
		InvestmentAmount:   amount,
		EquityPercentage:   equity,
		ImpliedValuation:   implied,
		PostMoneyValuation: implied,
		InstrumentType:     instrument,
		Conditions:         conditions,
	}, nil
}

func NormalizeInstrument(raw string) (Instrument, bool) {
	switch Instrument(raw) {
	case InstrumentEquity, InstrumentSAFE, InstrumentConvertibleNote:
		return Instrument(raw), true
	case "":
		return InstrumentEquity, true
	default:
		return "", false
	}
}
