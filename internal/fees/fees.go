// Package fees implements the pluggable transaction-fee models and the
// per-asset state/P&L accumulator from spec §4.10.
package fees

import "github.com/hftbacktest-go/hftbacktest/pkg/order"

// CommonFees is the maker/taker fee-rate split shared by every model.
type CommonFees struct {
	MakerFee float64
	TakerFee float64
}

// DirectionalFees adds a buyer/seller surcharge on top of CommonFees,
// modelling venue charges like stamp duty that apply based on trade
// direction regardless of maker/taker status.
type DirectionalFees struct {
	Common   CommonFees
	BuyerFee float64
	SellerFee float64
}

func (f DirectionalFees) rate(o *order.Order) float64 {
	common := f.Common.MakerFee
	if !o.Maker {
		common = f.Common.TakerFee
	}
	if o.Side == order.Buy {
		return common + f.BuyerFee
	}
	return common + f.SellerFee
}

// Model computes the fee owed for one fill. fillQty is the executed
// quantity of the fill and notional is its value (exec_qty * exec_price);
// the order supplies side and maker/taker role.
type Model interface {
	Amount(o *order.Order, fillQty, notional float64) float64
}

// TradingValue charges a rate against the trade's notional value.
type TradingValue struct {
	Common      CommonFees
	Directional *DirectionalFees // nil uses Common only
}

func (m TradingValue) Amount(o *order.Order, fillQty, notional float64) float64 {
	if m.Directional != nil {
		return m.Directional.rate(o) * notional
	}
	if o.Maker {
		return m.Common.MakerFee * notional
	}
	return m.Common.TakerFee * notional
}

// TradingQty charges a rate against the executed quantity instead of
// notional value (flat per-unit fee).
type TradingQty struct {
	Common      CommonFees
	Directional *DirectionalFees
}

func (m TradingQty) Amount(o *order.Order, fillQty, notional float64) float64 {
	if m.Directional != nil {
		return m.Directional.rate(o) * fillQty
	}
	if o.Maker {
		return m.Common.MakerFee * fillQty
	}
	return m.Common.TakerFee * fillQty
}

// FlatPerTrade charges a fixed fee per fill regardless of size,
// independent of maker/taker volume.
type FlatPerTrade struct {
	Common CommonFees
}

func (m FlatPerTrade) Amount(o *order.Order, fillQty, notional float64) float64 {
	if o.Maker {
		return m.Common.MakerFee
	}
	return m.Common.TakerFee
}

// AssetType selects the position/balance multiplier applied on a fill
// (spec §4.10): Linear contracts settle in quote currency 1:1; Inverse
// (coin-margined) contracts settle with a 1/price multiplier.
type AssetType int8

const (
	Linear AssetType = iota
	Inverse
)

func (t AssetType) multiplier(price float64) float64 {
	if t == Inverse {
		if price == 0 {
			return 0
		}
		return 1 / price
	}
	return 1
}

// StateValues accumulates one asset's position, balance, and trade
// statistics across fills (spec §4.10).
type StateValues struct {
	Position   float64
	Balance    float64
	Fee        float64
	TradeCount int64
	TradeQty   float64
	TradeAmount float64

	AssetType AssetType
	FeeModel  Model
}

// ApplyFill updates StateValues for one Filled/PartiallyFilled
// observation of o, given the quantity and price of that specific fill
// increment (fillQty, fillPrice).
func (s *StateValues) ApplyFill(o *order.Order, fillQty, fillPrice float64) {
	if fillQty <= 0 {
		return
	}
	signedQty := fillQty
	if o.Side == order.Sell {
		signedQty = -fillQty
	}
	mult := s.AssetType.multiplier(fillPrice)
	notional := fillQty * fillPrice * mult

	s.Position += signedQty
	s.Balance -= signedQty * fillPrice * mult

	if s.FeeModel != nil {
		fee := s.FeeModel.Amount(o, fillQty, notional)
		s.Fee += fee
		s.Balance -= fee
	}

	s.TradeCount++
	s.TradeQty += fillQty
	s.TradeAmount += notional
}
