// Package export escribe el reporte de cada ciclo en un libro XLSX.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/alejandrodnm/buylist/internal/domain"
)

const (
	sheetPrices          = "Prices"
	sheetHot             = "Hot Cards"
	sheetRecommendations = "Recommendations"
	sheetSummary         = "Summary"
)

// XLSXExporter implementa ports.Notifier. Sobrescribe el fichero en cada
// ciclo; un path con "{run}" genera un fichero por ejecución.
type XLSXExporter struct {
	path string
}

// NewXLSXExporter crea el exporter.
func NewXLSXExporter(path string) *XLSXExporter {
	return &XLSXExporter{path: path}
}

// Notify escribe el libro.
func (e *XLSXExporter) Notify(_ context.Context, report domain.RefreshReport) error {
	path := e.Path(report)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("export.Notify: mkdir %q: %w", dir, err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetPrices); err != nil {
		return fmt.Errorf("export.Notify: %w", err)
	}
	for _, name := range []string{sheetHot, sheetRecommendations, sheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("export.Notify: new sheet %s: %w", name, err)
		}
	}

	writers := []func(*excelize.File, domain.RefreshReport) error{
		writePrices, writeHot, writeRecommendations, writeSummary,
	}
	for _, w := range writers {
		if err := w(f, report); err != nil {
			return fmt.Errorf("export.Notify: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("export.Notify: save %q: %w", path, err)
	}
	return nil
}

// Path resuelve el fichero de destino para el reporte.
func (e *XLSXExporter) Path(report domain.RefreshReport) string {
	return strings.ReplaceAll(e.path, "{run}", report.RunID)
}

func writePrices(f *excelize.File, r domain.RefreshReport) error {
	rows := [][]any{{"Card", "Set", "Foil", "Quantity", "Best bid", "Bid vendor", "Best offer", "Offer vendor", "Vendors", "Updated"}}
	for _, h := range r.Holdings {
		c := h.Set.Card
		bid, bidSrc := quoteCells(h.Set.BestBid)
		offer, offerSrc := quoteCells(h.Set.BestOffer)
		rows = append(rows, []any{
			c.Name, c.Set, string(c.Foil), h.Quantity, bid, bidSrc, offer, offerSrc,
			len(h.Set.Prices), h.Set.UpdatedAt.Format("2006-01-02 15:04"),
		})
	}
	return writeRows(f, sheetPrices, rows)
}

func writeHot(f *excelize.File, r domain.RefreshReport) error {
	rows := [][]any{{"Card", "Score", "Change %", "Change", "Trend", "Sustained", "Volatility", "Confidence", "Points", "Risks", "Recommendation"}}
	for _, h := range r.HotCards {
		rows = append(rows, []any{
			h.Card.String(), h.Score, h.ChangePercent, h.ChangeAmount, string(h.Trend),
			h.Sustained, h.Volatility, h.Confidence, h.DataPoints,
			strings.Join(h.RiskFactors, ", "), h.Recommendation,
		})
	}
	return writeRows(f, sheetHot, rows)
}

func writeRecommendations(f *excelize.File, r domain.RefreshReport) error {
	rows := [][]any{{"Action", "Card", "Confidence", "Current", "Average", "Deviation %", "Momentum", "Volatility", "Expected value", "Potential", "Risk", "Timeframe", "Reasoning"}}
	recs := r.Recommendations
	for _, list := range [][]domain.Recommendation{recs.Sell, recs.Buy, recs.Hold} {
		for _, rec := range list {
			rows = append(rows, []any{
				string(rec.Action), rec.Card.String(), rec.Confidence, rec.CurrentPrice,
				rec.AveragePrice, rec.DeviationPercent, rec.Momentum, rec.Volatility,
				rec.ExpectedValue, rec.Potential, string(rec.RiskLevel), rec.Timeframe,
				strings.Join(rec.Reasoning, "; "),
			})
		}
	}
	return writeRows(f, sheetRecommendations, rows)
}

func writeSummary(f *excelize.File, r domain.RefreshReport) error {
	s := r.Summary
	rs := r.Recommendations.Summary
	rows := [][]any{
		{"Run", r.RunID},
		{"Generated", r.GeneratedAt.Format("2006-01-02 15:04:05")},
		{"Total cards", s.TotalCards},
		{"Total copies", s.TotalQuantity},
		{"Cards with prices", s.CardsWithPrices},
		{"Cards without prices", s.CardsWithoutPrices},
		{"Collection value", s.CollectionValue},
		{"Best vendor", s.BestVendor},
		{"Best vendor value", s.BestVendorValue},
		{"Potential profit", rs.PotentialProfit},
		{"Potential savings", rs.PotentialSavings},
		{"Potential growth", rs.PotentialGrowth},
		{"Net potential", rs.NetPotential},
		{"Source failures", len(r.Batch.Failures)},
	}
	return writeRows(f, sheetSummary, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func quoteCells(q *domain.PriceQuote) (any, string) {
	if q == nil {
		return "", ""
	}
	return q.Amount.InexactFloat64(), q.Source
}
