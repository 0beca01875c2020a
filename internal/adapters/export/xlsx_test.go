package export_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/alejandrodnm/buylist/internal/adapters/export"
	"github.com/alejandrodnm/buylist/internal/domain"
)

func TestXLSXExporter_WritesSheets(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	bolt := domain.CardIdentity{Name: "Lightning Bolt", Set: "Magic 2010"}
	set := domain.NewCardPriceSet(bolt, map[string][]domain.PriceQuote{
		"Card Kingdom": {{Source: "Card Kingdom", Amount: decimal.RequireFromString("1.25"), Kind: domain.KindBid, ObservedAt: now}},
	})
	holdings := []domain.Holding{{Set: set, Quantity: 2, Condition: domain.ConditionNM}}
	report := domain.RefreshReport{
		RunID:       "run-1",
		GeneratedAt: now,
		Holdings:    holdings,
		Summary:     domain.Summarize(holdings),
		HotCards:    []domain.HotCardScore{{Card: bolt, Score: 0.8, Trend: domain.TrendUp, RiskFactors: []string{"Foil card"}}},
		Recommendations: domain.Recommendations{
			Buy: []domain.Recommendation{{Card: bolt, Action: domain.ActionBuy, Confidence: 0.6, Reasoning: []string{"a", "b"}}},
		},
	}

	dir := t.TempDir()
	exp := export.NewXLSXExporter(filepath.Join(dir, "reports", "{run}.xlsx"))
	require.NoError(t, exp.Notify(context.Background(), report))

	path := exp.Path(report)
	assert.Equal(t, filepath.Join(dir, "reports", "run-1.xlsx"), path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Prices", "Hot Cards", "Recommendations", "Summary"}, f.GetSheetList())

	rows, err := f.GetRows("Prices")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Lightning Bolt", rows[1][0])
	assert.Equal(t, "2", rows[1][3])
	assert.Equal(t, "1.25", rows[1][4])
	assert.Equal(t, "Card Kingdom", rows[1][5])

	recs, err := f.GetRows("Recommendations")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "buy", recs[1][0])
	assert.Equal(t, "a; b", recs[1][12])

	value, err := f.GetCellValue("Summary", "B7")
	require.NoError(t, err)
	assert.Equal(t, "2.5", value)
}
