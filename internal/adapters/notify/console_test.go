package notify_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/buylist/internal/adapters/notify"
	"github.com/alejandrodnm/buylist/internal/domain"
)

var now = time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

func makeReport() domain.RefreshReport {
	bolt := domain.CardIdentity{Name: "Lightning Bolt", Set: "Magic 2010"}
	counter := domain.CardIdentity{Name: "Counterspell", Set: "Alpha"}

	set := domain.NewCardPriceSet(bolt, map[string][]domain.PriceQuote{
		"Card Kingdom": {{Source: "Card Kingdom", Amount: decimal.RequireFromString("1.10"), Kind: domain.KindBid, Condition: domain.ConditionNM, ObservedAt: now}},
		"Scryfall":     {{Source: "Scryfall", Amount: decimal.RequireFromString("2.15"), Kind: domain.KindOffer, Condition: domain.ConditionNM, ObservedAt: now}},
	})
	holdings := []domain.Holding{
		{Set: set, Quantity: 4, Condition: domain.ConditionNM},
		{Set: domain.EmptyPriceSet(counter), Quantity: 1, Condition: domain.ConditionLP},
	}
	recs := domain.Recommendations{
		Sell: []domain.Recommendation{{
			Card: bolt, Action: domain.ActionSell, Confidence: 0.6, CurrentPrice: 1.1,
			AveragePrice: 0.8, DeviationPercent: 37.5, ExpectedValue: 4.4,
			RiskLevel: domain.RiskLow, Timeframe: "immediate",
		}},
	}
	recs.Summary = recs.Summarize()

	return domain.RefreshReport{
		RunID:       "0123456789abcdef",
		GeneratedAt: now,
		Holdings:    holdings,
		Summary:     domain.Summarize(holdings),
		HotCards: []domain.HotCardScore{{
			Card: bolt, Score: 0.91, ChangePercent: 22.5, Trend: domain.TrendStrongUp,
			Sustained: true, Volatility: 8, Recommendation: "Strong Buy/Sell Signal",
		}},
		Recommendations: recs,
		Batch: domain.BatchReport{
			RunID: "0123456789abcdef", Cards: 2, StartedAt: now, FinishedAt: now.Add(1500 * time.Millisecond),
			Failures: []domain.SourceFailure{{Card: "x", Source: "Scryfall", Timeout: true}},
		},
	}
}

func TestConsole_Notify_Table(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	require.NoError(t, n.Notify(context.Background(), makeReport()))

	out := buf.String()
	assert.Contains(t, out, "Lightning Bolt")
	assert.Contains(t, out, "Counterspell")
	assert.Contains(t, out, "$1.10")
	assert.Contains(t, out, "Card Kingdom")
	assert.Contains(t, out, "HOT CARDS (1)")
	assert.Contains(t, out, "SELL")
	assert.Contains(t, out, "$4.40", "valor de colección = 1.10 × 4")
	assert.Contains(t, out, "01234567")
	assert.Contains(t, out, "1 timeouts")
}

func TestConsole_Notify_Compact(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, n.Notify(context.Background(), makeReport()))

	out := buf.String()
	assert.Contains(t, out, "[12:30:00] 2 cards (1 priced) value $4.40")
	assert.Contains(t, out, "best Card Kingdom $4.40")
	assert.Contains(t, out, "hot:1 sell:1 buy:0 hold:0")
	assert.Contains(t, out, "failures:1 (timeouts:1)")
}

func TestConsole_Notify_EmptyCollection(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	require.NoError(t, n.Notify(context.Background(), domain.RefreshReport{GeneratedAt: now}))
	assert.Contains(t, buf.String(), "empty collection")
}
