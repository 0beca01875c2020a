package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/buylist/internal/domain"
)

const (
	defaultScryfallBase = "https://api.scryfall.com"
	scryfallName        = "Scryfall"

	// Scryfall pide 50-100ms entre peticiones → 8/s deja margen.
	defaultScryfallRate = 8

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// errNotFound indica que Scryfall no conoce la carta: no es un fallo de la fuente.
var errNotFound = errors.New("card not found")

// ScryfallConfig configura el cliente.
type ScryfallConfig struct {
	BaseURL    string
	RatePerSec float64
	Timeout    time.Duration
	Retries    int
}

// ScryfallSource consulta el precio de mercado de Scryfall. Solo produce
// cotizaciones de venta (offer): Scryfall no tiene buylist.
type ScryfallSource struct {
	client  *resty.Client
	limiter *rate.Limiter
	now     func() time.Time
}

type scryfallCard struct {
	Object          string         `json:"object"`
	Name            string         `json:"name"`
	Set             string         `json:"set"`
	SetName         string         `json:"set_name"`
	CollectorNumber string         `json:"collector_number"`
	Prices          scryfallPrices `json:"prices"`
}

type scryfallPrices struct {
	USD       *string `json:"usd"`
	USDFoil   *string `json:"usd_foil"`
	USDEtched *string `json:"usd_etched"`
}

// NewScryfallSource crea la fuente con rate limiting y retries con backoff
// exponencial para 429 y 5xx.
func NewScryfallSource(cfg ScryfallConfig) *ScryfallSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultScryfallBase
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultScryfallRate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = maxRetries
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "buylist/1.0").
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(baseRetryWait).
		SetRetryMaxWaitTime(4 * baseRetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return r == nil || r.Request == nil || r.Request.Context().Err() == nil
			}
			if r.StatusCode() == http.StatusTooManyRequests {
				slog.Warn("scryfall: rate limited", "attempt", r.Request.Attempt)
				return true
			}
			return r.StatusCode() >= 500
		})
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if err := limiter.Wait(req.Context()); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		return nil
	})

	return &ScryfallSource{client: client, limiter: limiter, now: time.Now}
}

func (s *ScryfallSource) Name() string { return scryfallName }

// Quote busca la carta (por set+número, o por nombre exacto y set) y devuelve
// una offer con el precio de mercado de su acabado. Carta desconocida o sin
// precio → lista vacía.
func (s *ScryfallSource) Quote(ctx context.Context, card domain.CardIdentity) ([]domain.PriceQuote, error) {
	sc, err := s.lookup(ctx, card)
	if errors.Is(err, errNotFound) {
		return []domain.PriceQuote{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scryfall.Quote %s: %w", card.Key(), err)
	}

	raw := marketPrice(sc.Prices, card)
	if raw == "" {
		return []domain.PriceQuote{}, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil || !amount.IsPositive() {
		slog.Debug("scryfall: unusable price", "card", card.Key(), "price", raw)
		return []domain.PriceQuote{}, nil
	}

	return []domain.PriceQuote{{
		Source:     scryfallName,
		Amount:     amount,
		Kind:       domain.KindOffer,
		Condition:  domain.ConditionNM,
		ObservedAt: s.now(),
		Notes:      fmt.Sprintf("Scryfall market price for %s", sc.SetName),
	}}, nil
}

func (s *ScryfallSource) lookup(ctx context.Context, card domain.CardIdentity) (*scryfallCard, error) {
	req := s.client.R().SetContext(ctx).SetResult(&scryfallCard{})

	var (
		resp *resty.Response
		err  error
	)
	switch {
	case card.SetCode != "" && card.CollectorNumber != "":
		resp, err = req.
			SetPathParams(map[string]string{
				"set":    strings.ToLower(card.SetCode),
				"number": card.CollectorNumber,
			}).
			Get("/cards/{set}/{number}")
	default:
		params := map[string]string{"exact": card.Name}
		if set := setParam(card); set != "" {
			params["set"] = set
		}
		resp, err = req.SetQueryParams(params).Get("/cards/named")
	}
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, errNotFound
	case resp.IsError():
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}

	sc, ok := resp.Result().(*scryfallCard)
	if !ok || sc == nil {
		return nil, fmt.Errorf("decode response")
	}
	return sc, nil
}

// marketPrice elige el precio según el acabado: etched → usd_etched,
// cualquier otro foil → usd_foil, non-foil → usd.
func marketPrice(p scryfallPrices, card domain.CardIdentity) string {
	pick := func(vals ...*string) string {
		for _, v := range vals {
			if v != nil && *v != "" {
				return *v
			}
		}
		return ""
	}
	switch {
	case card.Foil == domain.FoilEtched:
		return pick(p.USDEtched, p.USDFoil)
	case card.IsFoil():
		return pick(p.USDFoil, p.USDEtched)
	default:
		return pick(p.USD)
	}
}

func setParam(card domain.CardIdentity) string {
	if card.SetCode != "" {
		return strings.ToLower(card.SetCode)
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
