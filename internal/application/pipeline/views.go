package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/buylist/internal/application/viewcache"
	"github.com/alejandrodnm/buylist/internal/domain"
)

// Las vistas se leen de la caché de vistas salvo force o miss. Antes de leer
// se carga la colección: si cambió, las vistas ya están invalidadas. Al
// recalcular se usan los últimos precios guardados sin filtro de frescura:
// una vista muestra lo último conocido, el refresco es tarea de Refresh.

// Dashboard devuelve el resumen de la colección con hot cards y recomendaciones.
func (p *Pipeline) Dashboard(ctx context.Context, force bool) (domain.Dashboard, error) {
	key := viewcache.Key(viewcache.ViewDashboard)
	var d domain.Dashboard
	collection, err := p.loadCollection(ctx)
	if err != nil {
		return d, fmt.Errorf("pipeline.Dashboard: %w", err)
	}
	if !force && p.Views.Get(ctx, key, &d) {
		return d, nil
	}

	holdings := p.holdings(ctx, collection)
	hot := p.Hot.DetectHoldings(ctx, holdings, p.cfg.HotWindowDays)
	recs := p.Recommend.RecommendHoldings(ctx, holdings, hot)
	d = domain.NewDashboard(p.now(), holdings, hot, recs)
	p.setView(ctx, key, d)
	return d, nil
}

// MarketAnalysis devuelve el análisis de mercado por carta.
func (p *Pipeline) MarketAnalysis(ctx context.Context, force bool) (domain.MarketAnalysis, error) {
	key := viewcache.Key(viewcache.ViewMarketAnalysis)
	var m domain.MarketAnalysis
	collection, err := p.loadCollection(ctx)
	if err != nil {
		return m, fmt.Errorf("pipeline.MarketAnalysis: %w", err)
	}
	if !force && p.Views.Get(ctx, key, &m) {
		return m, nil
	}

	holdings := p.holdings(ctx, collection)
	m = p.Market.Analyze(ctx, domain.Sets(holdings))
	p.setView(ctx, key, m)
	return m, nil
}

// HotCards devuelve las hot cards de la ventana configurada.
func (p *Pipeline) HotCards(ctx context.Context, force bool) ([]domain.HotCardScore, error) {
	key := viewcache.Key(viewcache.ViewHotCards, p.cfg.HotWindowDays)
	var hot []domain.HotCardScore
	collection, err := p.loadCollection(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline.HotCards: %w", err)
	}
	if !force && p.Views.Get(ctx, key, &hot) {
		return hot, nil
	}

	holdings := p.holdings(ctx, collection)
	hot = p.Hot.DetectHoldings(ctx, holdings, p.cfg.HotWindowDays)
	p.setView(ctx, key, hot)
	return hot, nil
}

// Recommendations devuelve las listas sell/buy/hold.
func (p *Pipeline) Recommendations(ctx context.Context, force bool) (domain.Recommendations, error) {
	key := viewcache.Key(viewcache.ViewRecommendations)
	var recs domain.Recommendations
	collection, err := p.loadCollection(ctx)
	if err != nil {
		return recs, fmt.Errorf("pipeline.Recommendations: %w", err)
	}
	if !force && p.Views.Get(ctx, key, &recs) {
		return recs, nil
	}

	hot, err := p.HotCards(ctx, force)
	if err != nil {
		return recs, fmt.Errorf("pipeline.Recommendations: %w", err)
	}
	holdings := p.holdings(ctx, collection)
	recs = p.Recommend.RecommendHoldings(ctx, holdings, hot)
	p.setView(ctx, key, recs)
	return recs, nil
}

// storeViews cachea lo ya calculado por Refresh.
func (p *Pipeline) storeViews(ctx context.Context, r domain.RefreshReport) {
	p.setView(ctx, viewcache.Key(viewcache.ViewHotCards, p.cfg.HotWindowDays), r.HotCards)
	p.setView(ctx, viewcache.Key(viewcache.ViewRecommendations), r.Recommendations)
	p.setView(ctx, viewcache.Key(viewcache.ViewDashboard),
		domain.NewDashboard(r.GeneratedAt, r.Holdings, r.HotCards, r.Recommendations))
}

func (p *Pipeline) setView(ctx context.Context, key string, payload any) {
	if err := p.Views.Set(ctx, key, payload, 0); err != nil {
		slog.Warn("view cache write failed", "key", key, "err", err)
	}
}

// holdings combina la colección con los últimos precios guardados.
func (p *Pipeline) holdings(ctx context.Context, collection []domain.CollectionCard) []domain.Holding {
	sets := p.Prices.Get(ctx, domain.Identities(collection), true)
	return holdingsFor(collection, sets)
}
