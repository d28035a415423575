package chase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Position category markers in the positions payload.
const (
	cashSweepName  = "Cash and Sweep Funds"
	equityCategory = "EQUITY"
)

// PositionKind classifies a position by which fields it carries.
type PositionKind int

const (
	KindOther PositionKind = iota
	KindCashSweep
	KindEquity
)

// String returns a readable name for the kind.
func (k PositionKind) String() string {
	switch k {
	case KindCashSweep:
		return "cash_sweep"
	case KindEquity:
		return "equity"
	default:
		return "other"
	}
}

// MarketValue is the valuation block of a position.
type MarketValue struct {
	BaseValueAmount FlexibleFloat `json:"baseValueAmount"`
}

// SecurityID identifies a security by symbol and/or CUSIP.
type SecurityID struct {
	Symbol string `json:"symbolSecurityIdentifier,omitempty"`
	CUSIP  string `json:"cusipIdentifier,omitempty"`
}

// SecurityIDs decodes securityIdDetail, which the site sends either as a
// single object or as a list of them.
type SecurityIDs []SecurityID

// UnmarshalJSON accepts an object, an array of objects or null.
func (s *SecurityIDs) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*s = nil
		return nil
	case data[0] == '{':
		var one SecurityID
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*s = SecurityIDs{one}
		return nil
	}
	var many []SecurityID
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// PositionComponent is one lot-level component of a position.
type PositionComponent struct {
	SecurityIDDetail SecurityIDs `json:"securityIdDetail"`
}

// Position is one held instrument. Equity and cash-sweep records carry
// different fields, so most are optional.
type Position struct {
	InstrumentLongName string              `json:"instrumentLongName"`
	AssetCategoryName  string              `json:"assetCategoryName"`
	MarketValue        *MarketValue        `json:"marketValue"`
	TradedUnitQuantity FlexibleFloat       `json:"tradedUnitQuantity"`
	PositionComponents []PositionComponent `json:"positionComponents"`
	SecurityIDDetail   SecurityIDs         `json:"securityIdDetail"`

	Raw json.RawMessage `json:"-"`

	decodeErr error
}

// UnmarshalJSON keeps the raw record alongside the decoded fields. A record
// that does not decode is kept as raw only and reported by Summary, so one
// odd record does not fail the whole payload.
func (p *Position) UnmarshalJSON(data []byte) error {
	type plain Position
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		*p = Position{decodeErr: err}
	} else {
		*p = Position(v)
	}
	p.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Kind classifies the position.
func (p *Position) Kind() PositionKind {
	switch {
	case p.InstrumentLongName == cashSweepName:
		return KindCashSweep
	case p.AssetCategoryName == equityCategory:
		return KindEquity
	default:
		return KindOther
	}
}

// Symbol returns the ticker from the first position component, or the CUSIP
// when the component path is absent.
func (p *Position) Symbol() (string, error) {
	if len(p.PositionComponents) > 0 && len(p.PositionComponents[0].SecurityIDDetail) > 0 {
		if sym := p.PositionComponents[0].SecurityIDDetail[0].Symbol; sym != "" {
			return sym, nil
		}
	}
	if len(p.SecurityIDDetail) > 0 && p.SecurityIDDetail[0].CUSIP != "" {
		return p.SecurityIDDetail[0].CUSIP, nil
	}
	return "", fmt.Errorf("%w: no symbol or CUSIP", ErrMalformedPosition)
}

// PositionSummary is the normalised view of a position.
type PositionSummary struct {
	Kind        PositionKind `json:"kind"`
	Symbol      string       `json:"symbol"`
	Description string       `json:"description"`
	Value       float64      `json:"value"`
	Quantity    float64      `json:"quantity,omitempty"`
}

// Summary extracts the fields relevant to the position's kind.
func (p *Position) Summary() (PositionSummary, error) {
	if p.decodeErr != nil {
		return PositionSummary{}, fmt.Errorf("%w: %v", ErrMalformedPosition, p.decodeErr)
	}
	kind := p.Kind()
	if kind == KindOther {
		return PositionSummary{}, fmt.Errorf("%w: %q (%s)", ErrUnsupportedPosition, p.AssetCategoryName, p.InstrumentLongName)
	}
	if p.MarketValue == nil {
		return PositionSummary{}, fmt.Errorf("%w: no market value", ErrMalformedPosition)
	}

	s := PositionSummary{
		Kind:        kind,
		Description: p.InstrumentLongName,
		Value:       p.MarketValue.BaseValueAmount.Float64(),
	}

	if kind == KindCashSweep {
		s.Symbol = p.InstrumentLongName
		return s, nil
	}

	sym, err := p.Symbol()
	if err != nil {
		return PositionSummary{}, err
	}
	s.Symbol = sym
	s.Quantity = p.TradedUnitQuantity.Float64()
	return s, nil
}

// Summaries summarises every position. Records that cannot be summarised are
// left out of the slice and reported together in the returned error.
func (h *Holdings) Summaries() ([]PositionSummary, error) {
	out := make([]PositionSummary, 0, len(h.Positions))
	var errs []error
	for i := range h.Positions {
		s, err := h.Positions[i].Summary()
		if err != nil {
			errs = append(errs, fmt.Errorf("position %d: %w", i, err))
			continue
		}
		out = append(out, s)
	}
	return out, errors.Join(errs...)
}

// TotalValue sums the market value of every position that has one.
func (h *Holdings) TotalValue() float64 {
	var total float64
	for _, p := range h.Positions {
		if p.MarketValue != nil {
			total += p.MarketValue.BaseValueAmount.Float64()
		}
	}
	return total
}
