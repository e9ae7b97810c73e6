package fees

import (
	"testing"

	"github.com/hftbacktest-go/hftbacktest/pkg/depth"
	"github.com/hftbacktest-go/hftbacktest/pkg/order"
)

func newOrder(side order.Side, maker bool) *order.Order {
	ticker := depth.Ticker{TickSize: 0.01, LotSize: 1}
	o := order.New(1, side, order.Limit, order.GTC, ticker, 100.00, 5, 0)
	o.Maker = maker
	return o
}

func TestTradingValueMakerTakerSplit(t *testing.T) {
	m := TradingValue{Common: CommonFees{MakerFee: 0.0002, TakerFee: 0.0005}}
	maker := newOrder(order.Buy, true)
	taker := newOrder(order.Buy, false)

	if got := m.Amount(maker, 5, 500); got != 0.1 {
		t.Fatalf("maker fee = %v, want 0.1", got)
	}
	if got := m.Amount(taker, 5, 500); got != 0.25 {
		t.Fatalf("taker fee = %v, want 0.25", got)
	}
}

func TestTradingValueDirectionalAddsSurcharge(t *testing.T) {
	m := TradingValue{Directional: &DirectionalFees{
		Common:   CommonFees{MakerFee: 0.0002, TakerFee: 0.0005},
		BuyerFee: 0.0001, SellerFee: 0.0003,
	}}
	buyTaker := newOrder(order.Buy, false)
	sellMaker := newOrder(order.Sell, true)

	// (taker 0.0005 + buyer 0.0001) * 1000 in float64 arithmetic.
	wantBuy := (m.Directional.Common.TakerFee + m.Directional.BuyerFee) * 1000
	if got := m.Amount(buyTaker, 5, 1000); got != wantBuy {
		t.Fatalf("buy taker fee = %v, want %v", got, wantBuy)
	}
	if got := m.Amount(sellMaker, 5, 1000); got != 0.5 {
		t.Fatalf("sell maker fee = %v, want 0.5", got)
	}
}

func TestTradingQtyChargesPerUnit(t *testing.T) {
	m := TradingQty{Common: CommonFees{MakerFee: 0.01, TakerFee: 0.02}}
	maker := newOrder(order.Buy, true)
	if got := m.Amount(maker, 5, 500); got != 0.05 {
		t.Fatalf("got %v, want 0.05", got)
	}
}

func TestFlatPerTradeIgnoresSize(t *testing.T) {
	m := FlatPerTrade{Common: CommonFees{MakerFee: 1.0, TakerFee: 2.0}}
	taker := newOrder(order.Buy, false)
	if got := m.Amount(taker, 1000, 1e9); got != 2.0 {
		t.Fatalf("got %v, want 2.0", got)
	}
}

func TestApplyFillUpdatesPositionAndBalanceLinear(t *testing.T) {
	sv := &StateValues{AssetType: Linear, FeeModel: TradingValue{Common: CommonFees{TakerFee: 0.001}}}
	buy := newOrder(order.Buy, false)

	sv.ApplyFill(buy, 2, 100.0)

	if sv.Position != 2 {
		t.Fatalf("position = %v, want 2", sv.Position)
	}
	wantBalance := -200.0 - 0.2 // notional + fee
	if sv.Balance != wantBalance {
		t.Fatalf("balance = %v, want %v", sv.Balance, wantBalance)
	}
	if sv.TradeCount != 1 || sv.TradeQty != 2 || sv.TradeAmount != 200 {
		t.Fatalf("unexpected trade stats: %+v", sv)
	}
}

func TestApplyFillInverseUsesReciprocalMultiplier(t *testing.T) {
	sv := &StateValues{AssetType: Inverse}
	sell := newOrder(order.Sell, true)

	sv.ApplyFill(sell, 100, 50.0)

	if sv.Position != -100 {
		t.Fatalf("position = %v, want -100", sv.Position)
	}
	wantBalance := 100.0 * 50.0 * (1.0 / 50.0)
	if sv.Balance != wantBalance {
		t.Fatalf("balance = %v, want %v", sv.Balance, wantBalance)
	}
}

func TestApplyFillIgnoresZeroQty(t *testing.T) {
	sv := &StateValues{AssetType: Linear}
	buy := newOrder(order.Buy, true)
	sv.ApplyFill(buy, 0, 100.0)
	if sv.Position != 0 || sv.TradeCount != 0 {
		t.Fatalf("expected no-op for zero fill qty, got %+v", sv)
	}
}
