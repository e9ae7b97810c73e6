// Command hftbacktest is an example wiring entry point: it loads one
// asset's recorded tape, runs a trivial spread-quoting loop against the
// backtest driver, and prints the resulting position/P&L. It is
// deliberately thin -- configuration loading and CLI ergonomics are out
// of scope (spec §1's Non-goals); the point is to show how the pieces in
// pkg/ and internal/ are wired together, not to be a production runner.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hftbacktest-go/hftbacktest/internal/backtest"
	"github.com/hftbacktest-go/hftbacktest/internal/exchproc"
	"github.com/hftbacktest-go/hftbacktest/internal/fees"
	"github.com/hftbacktest-go/hftbacktest/internal/metrics"
	"github.com/hftbacktest-go/hftbacktest/pkg/depth"
	"github.com/hftbacktest-go/hftbacktest/pkg/event"
	"github.com/hftbacktest-go/hftbacktest/pkg/latency"
	"github.com/hftbacktest-go/hftbacktest/pkg/order"
	"github.com/hftbacktest-go/hftbacktest/pkg/queue"
	"github.com/hftbacktest-go/hftbacktest/pkg/tape"
)

func main() {
	tapePath := flag.String("tape", "", "path to a tape file written by pkg/tape.WriteHeader+EncodeRecord")
	tickSize := flag.Float64("tick-size", 0.01, "asset tick size")
	lotSize := flag.Float64("lot-size", 0.001, "asset lot size")
	spreadTicks := flag.Int64("spread-ticks", 2, "ticks to quote away from best bid/ask")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *tapePath == "" {
		logger.Fatal("-tape is required")
	}

	records, err := loadTape(*tapePath)
	if err != nil {
		logger.Fatal("load tape", zap.Error(err))
	}

	eng := metrics.NewEngineMetrics(prometheus.DefaultRegisterer)

	ticker := depth.Ticker{TickSize: *tickSize, LotSize: *lotSize}
	driver, err := backtest.New([]backtest.AssetConfig{
		{
			Ticker:  ticker,
			Records: records,
			Latency: latency.Constant{Entry: 1_000_000, Response: 1_000_000},
			ExchangeConfig: exchproc.Config{
				Ticker: ticker,
				Fill:   exchproc.PartialFill,
				Book:   exchproc.L2Book,
				Queue:  queue.RiskAverse{},
			},
			FeeModel:  fees.TradingValue{Common: fees.CommonFees{MakerFee: -0.00005, TakerFee: 0.0003}},
			AssetType: fees.Linear,
			Metrics:   eng,
		},
	})
	if err != nil {
		logger.Fatal("construct driver", zap.Error(err))
	}
	defer driver.Close()

	if err := quoteSpread(driver, *spreadTicks, logger); err != nil {
		logger.Fatal("run", zap.Error(err))
	}

	logger.Info("run complete",
		zap.Float64("position", driver.Position(0)),
		zap.Float64("balance", driver.StateValues(0).Balance),
		zap.Int64("trade_count", driver.StateValues(0).TradeCount),
	)
}

func loadTape(path string) ([]event.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := tape.ReadHeader(f); err != nil {
		return nil, err
	}
	return tape.DecodeAll(f)
}

// quoteSpread is a minimal symmetric market-making loop: every time new
// local data arrives it cancels its resting quotes and reposts one tick
// spreadTicks away from the current best bid/ask. It exists only to
// exercise the driver end-to-end; it is not a strategy recommendation.
func quoteSpread(d *backtest.Driver, spreadTicks int64, logger *zap.Logger) error {
	const asset = 0
	var bidID, askID uint64 = 1, 2

	for {
		ok, err := d.WaitNextFeed(true, 1<<62)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		depthBook := d.Depth(asset)
		bidTick := depthBook.BestBidTick()
		askTick := depthBook.BestAskTick()
		if bidTick == depth.MinNone || askTick == depth.MaxNone {
			continue
		}

		for id := range d.Orders(asset) {
			_ = d.Cancel(asset, id, false)
		}

		bidPrice := depthBook.Ticker.TickToPrice(bidTick - spreadTicks)
		askPrice := depthBook.Ticker.TickToPrice(askTick + spreadTicks)

		if err := d.SubmitBuyOrder(asset, bidID, bidPrice, depthBook.Ticker.LotSize, order.GTX, order.Limit, false); err != nil {
			logger.Debug("bid rejected", zap.Error(err))
		}
		if err := d.SubmitSellOrder(asset, askID, askPrice, depthBook.Ticker.LotSize, order.GTX, order.Limit, false); err != nil {
			logger.Debug("ask rejected", zap.Error(err))
		}
		bidID += 2
		askID += 2
	}
}
