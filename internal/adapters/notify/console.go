package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/buylist/internal/domain"
)

// Console implementa ports.Notifier escribiendo el reporte en texto.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador sobre un writer arbitrario (tests).
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime el reporte en el modo configurado.
func (c *Console) Notify(_ context.Context, report domain.RefreshReport) error {
	ts := report.GeneratedAt.Format("15:04:05")
	if len(report.Holdings) == 0 {
		fmt.Fprintf(c.out, "[%s] empty collection\n", ts)
		return nil
	}

	if !c.table {
		c.printCompact(report)
		return nil
	}

	c.printPrices(report)
	c.printHot(report.HotCards)
	c.printRecommendations(report.Recommendations)
	c.printSummary(report)
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(r domain.RefreshReport) {
	s := r.Summary
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d cards (%d priced) value $%.2f",
		r.GeneratedAt.Format("15:04:05"), s.TotalCards, s.CardsWithPrices, s.CollectionValue)
	if s.BestVendor != "" {
		fmt.Fprintf(&sb, " | best %s $%.2f", s.BestVendor, s.BestVendorValue)
	}
	rs := r.Recommendations.Summary
	fmt.Fprintf(&sb, " | hot:%d sell:%d buy:%d hold:%d", len(r.HotCards), rs.SellCount, rs.BuyCount, rs.HoldCount)
	if n := len(r.Batch.Failures); n > 0 {
		fmt.Fprintf(&sb, " | failures:%d (timeouts:%d)", n, r.Batch.Timeouts())
	}
	fmt.Fprintln(c.out, sb.String())
}

func (c *Console) printPrices(r domain.RefreshReport) {
	fmt.Fprintf(c.out, "\n=== PRICES (%s) ===\n", r.GeneratedAt.Format("2006-01-02 15:04"))
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Card", "Qty", "Best bid", "Bid vendor", "Best offer", "Offer vendor", "Vendors")

	for i, h := range r.Holdings {
		bid, bidSrc := quoteCells(h.Set.BestBid)
		offer, offerSrc := quoteCells(h.Set.BestOffer)
		table.Append(
			fmt.Sprintf("%d", i+1),
			truncate(h.Set.Card.String(), 45),
			fmt.Sprintf("%d", h.Quantity),
			bid,
			bidSrc,
			offer,
			offerSrc,
			fmt.Sprintf("%d", len(h.Set.Prices)),
		)
	}
	table.Render()
}

func (c *Console) printHot(hot []domain.HotCardScore) {
	if len(hot) == 0 {
		return
	}
	fmt.Fprintf(c.out, "\n=== HOT CARDS (%d) ===\n", len(hot))
	table := tablewriter.NewWriter(c.out)
	table.Header("Card", "Score", "Change", "Trend", "Sustained", "Vol", "Recommendation")
	for _, h := range hot {
		sustained := "-"
		if h.Sustained {
			sustained = "yes"
		}
		table.Append(
			truncate(h.Card.String(), 40),
			fmt.Sprintf("%.2f", h.Score),
			fmt.Sprintf("%+.1f%%", h.ChangePercent),
			string(h.Trend),
			sustained,
			fmt.Sprintf("%.1f", h.Volatility),
			h.Recommendation,
		)
	}
	table.Render()
}

func (c *Console) printRecommendations(recs domain.Recommendations) {
	all := make([]domain.Recommendation, 0, len(recs.Sell)+len(recs.Buy)+len(recs.Hold))
	all = append(all, recs.Sell...)
	all = append(all, recs.Buy...)
	all = append(all, recs.Hold...)
	if len(all) == 0 {
		return
	}

	fmt.Fprintf(c.out, "\n=== RECOMMENDATIONS (%d) ===\n", len(all))
	table := tablewriter.NewWriter(c.out)
	table.Header("Action", "Card", "Conf", "Price", "Avg", "Dev", "EV", "Risk", "Timeframe")
	for _, r := range all {
		table.Append(
			strings.ToUpper(string(r.Action)),
			truncate(r.Card.String(), 40),
			fmt.Sprintf("%.2f", r.Confidence),
			fmt.Sprintf("$%.2f", r.CurrentPrice),
			fmt.Sprintf("$%.2f", r.AveragePrice),
			fmt.Sprintf("%+.1f%%", r.DeviationPercent),
			fmt.Sprintf("$%.2f", r.ExpectedValue),
			string(r.RiskLevel),
			r.Timeframe,
		)
	}
	table.Render()
}

func (c *Console) printSummary(r domain.RefreshReport) {
	s := r.Summary
	fmt.Fprintf(c.out, "\n  Cards: %d (%d copies) | priced: %d | no prices: %d\n",
		s.TotalCards, s.TotalQuantity, s.CardsWithPrices, s.CardsWithoutPrices)
	fmt.Fprintf(c.out, "  Collection value (best bids): $%.2f\n", s.CollectionValue)
	if s.BestVendor != "" {
		fmt.Fprintf(c.out, "  Best single vendor: %s $%.2f\n", s.BestVendor, s.BestVendorValue)
	}
	rs := r.Recommendations.Summary
	fmt.Fprintf(c.out, "  Potential: profit $%.2f | savings $%.2f | growth $%.2f | net $%.2f\n",
		rs.PotentialProfit, rs.PotentialSavings, rs.PotentialGrowth, rs.NetPotential)

	b := r.Batch
	if b.Cards > 0 {
		fmt.Fprintf(c.out, "  Refresh %s: %d cards in %s, %d source failures (%d timeouts)\n",
			shortID(b.RunID), b.Cards, b.Duration().Round(time.Millisecond), len(b.Failures), b.Timeouts())
	}
	fmt.Fprintln(c.out)
}

func quoteCells(q *domain.PriceQuote) (string, string) {
	if q == nil {
		return "-", "-"
	}
	return "$" + q.Amount.StringFixed(2), q.Source
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate corta s a n runas, añadiendo "…" si se truncó.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
