// Command summarize computes one entity's PnL offline from JSON files, for
// auditing stored summaries without a running service.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/atmx/pnl-engine/internal/engine"
	"github.com/atmx/pnl-engine/internal/marketmeta"
	"github.com/atmx/pnl-engine/internal/model"
	"github.com/atmx/pnl-engine/internal/normalize"
)

func main() {
	ordersPath := flag.String("orders", "", "JSON array of raw orders (required)")
	marketsPath := flag.String("markets", "", "JSON array of market metadata in any supported shape (optional)")
	format := flag.String("format", "text", "output format: text or json")
	flag.Parse()

	if *ordersPath == "" {
		fmt.Println("Error: -orders is required")
		flag.Usage()
		os.Exit(1)
	}

	orders, err := loadOrders(*ordersPath)
	if err != nil {
		fmt.Printf("Error loading orders: %v\n", err)
		os.Exit(1)
	}

	metas := map[model.MarketID]model.MarketMeta{}
	if *marketsPath != "" {
		metas, err = loadMetas(*marketsPath)
		if err != nil {
			fmt.Printf("Error loading market metadata: %v\n", err)
			os.Exit(1)
		}
	}

	res, err := engine.Summarize(orders, metas)
	if errors.Is(err, engine.ErrNoData) {
		fmt.Println("No usable orders: nothing to summarize.")
		os.Exit(2) // distinct from a computed zero summary
	}
	if err != nil {
		fmt.Printf("Error computing summary: %v\n", err)
		os.Exit(1)
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			fmt.Printf("Error encoding result: %v\n", err)
			os.Exit(1)
		}
	case "text":
		writeText(os.Stdout, res)
	default:
		fmt.Printf("Unknown format: %s\n", *format)
		os.Exit(1)
	}
}

func loadOrders(path string) ([]model.Order, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var orders []model.Order
	if err := json.Unmarshal(b, &orders); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return orders, nil
}

func loadMetas(path string) (map[model.MarketID]model.MarketMeta, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	list, err := marketmeta.DecodeMany(b)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	metas := make(map[model.MarketID]model.MarketMeta, len(list))
	for _, m := range list {
		metas[m.MarketID] = m
	}
	return metas, nil
}

func writeText(out io.Writer, res *engine.Result) {
	s := res.Summary
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "POSITION\tBOUGHT\tREMAINING\tREALIZED\tUNREALIZED\tSTATUS")
	for _, p := range res.Positions {
		unrealized := "-"
		if p.UnrealizedPnL != nil {
			unrealized = p.UnrealizedPnL.StringFixed(4)
		}
		status := "open"
		switch {
		case p.ClosedByResolution:
			status = "resolved (" + p.ResolutionSource + ")"
		case p.IsClosed():
			status = "closed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Key,
			p.TotalBuyShares.StringFixed(4),
			p.RemainingSize.StringFixed(4),
			p.RealizedPnL.StringFixed(4),
			unrealized,
			status,
		)
	}
	tw.Flush()

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Realized PnL:    %s\n", s.RealizedPnL.StringFixed(4))
	fmt.Fprintf(out, "Unrealized PnL:  %s\n", s.UnrealizedPnL.StringFixed(4))
	fmt.Fprintf(out, "Total PnL:       %s\n", s.TotalPnL.StringFixed(4))
	fmt.Fprintf(out, "Volume:          %s\n", s.TotalVolume.StringFixed(4))
	fmt.Fprintf(out, "ROI:             %s\n", s.ROI.StringFixed(4))
	fmt.Fprintf(out, "Win rate:        %s\n", s.WinRate.StringFixed(4))
	fmt.Fprintf(out, "Positions:       %d open, %d closed (%d won, %d lost)\n",
		s.OpenPositions, s.ClosedPositions, s.WinningPositions, s.LosingPositions)
	fmt.Fprintf(out, "Trades:          %d buys, %d sells\n", s.BuyTradeCount, s.SellTradeCount)
	if s.BestPositionPnL != nil {
		fmt.Fprintf(out, "Position PnL:    avg %s, best %s, worst %s\n",
			s.AvgPositionPnL.StringFixed(4), s.BestPositionPnL.StringFixed(4), s.WorstPositionPnL.StringFixed(4))
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Windows ending %s\n", s.Windows.AsOf.Format(time.RFC3339))
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WINDOW\tPOSITIONS\tTRADES\tREALIZED\tROI\tWIN RATE\tPER TRADE")
	for _, w := range []struct {
		name  string
		stats model.WindowStats
	}{
		{"lifetime", s.Windows.Lifetime},
		{"30d", s.Windows.D30},
		{"7d", s.Windows.D7},
	} {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			w.name,
			w.stats.Positions,
			w.stats.Trades,
			w.stats.RealizedPnL.StringFixed(4),
			w.stats.ROI.StringFixed(4),
			w.stats.WinRate.StringFixed(4),
			w.stats.AvgPnLPerTrade.StringFixed(4),
		)
	}
	tw.Flush()

	if len(res.Dropped) > 0 {
		reasons := make([]string, 0, len(res.Dropped))
		for r := range res.Dropped {
			reasons = append(reasons, string(r))
		}
		sort.Strings(reasons)
		fmt.Fprint(out, "Dropped orders:")
		for _, r := range reasons {
			fmt.Fprintf(out, " %s=%d", r, res.Dropped[normalize.Reason(r)])
		}
		fmt.Fprintln(out)
	}
	for _, key := range res.Disagreements {
		fmt.Fprintf(out, "Warning: %s mark price disagrees with the resolution payoff\n", key)
	}
}
