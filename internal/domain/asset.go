package domain

// InstrumentType classifies an asset for margin purposes.
type InstrumentType string

const (
	InstrumentSpot    InstrumentType = "spot"
	InstrumentFutures InstrumentType = "futures"
	InstrumentOptions InstrumentType = "options"
	InstrumentMargin  InstrumentType = "margin"
)

// Margined reports whether positions in this instrument type block margin
// instead of paying full notional in cash.
func (t InstrumentType) Margined() bool {
	return t != InstrumentSpot && t != ""
}

// Asset identifies a tradable instrument.
type Asset struct {
	Symbol string
	Type   InstrumentType
}

// Spot returns a spot asset for symbol.
func Spot(symbol string) Asset {
	return Asset{Symbol: symbol, Type: InstrumentSpot}
}

// String returns the asset symbol.
func (a Asset) String() string {
	return a.Symbol
}
