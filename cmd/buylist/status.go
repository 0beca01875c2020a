package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/buylist/internal/adapters/journal"
	"github.com/alejandrodnm/buylist/internal/application/pipeline"
	"github.com/alejandrodnm/buylist/internal/application/pricecache"
	"github.com/alejandrodnm/buylist/internal/domain"
	"github.com/alejandrodnm/buylist/internal/ports"
)

func printStatus(ctx context.Context, w io.Writer, prices *pricecache.Cache, history ports.HistoryStore, wal *journal.WALJournal, sourceNames []string) error {
	st, err := prices.Status(ctx)
	if err != nil {
		return err
	}
	hs, err := history.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n=== PRICE CACHE (freshness %s) ===\n", prices.Freshness())
	fmt.Fprintf(w, "cards: %d  fresh: %d  stale: %d\n", st.TotalCards, st.Fresh, st.Stale)
	if !st.LastUpdate.IsZero() {
		fmt.Fprintf(w, "last update: %s  next update: %s\n",
			st.LastUpdate.Format(time.DateTime), st.NextUpdate.Format(time.DateTime))
	}

	fmt.Fprintf(w, "\n=== HISTORY ===\n")
	fmt.Fprintf(w, "cards: %d  records: %d  avg/card: %.1f\n", hs.TotalCards, hs.TotalRecords, hs.AverageRecordsPerCard)
	if hs.TotalRecords > 0 {
		fmt.Fprintf(w, "range: %s → %s\n", hs.Oldest.Format(time.DateTime), hs.Newest.Format(time.DateTime))
	}

	if wal == nil {
		fmt.Fprintf(w, "\n=== SOURCES ===\nsource health needs the run journal: set journal.dir\n")
		return nil
	}
	health, batches, err := journaledHealth(wal)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n=== SOURCES (last %d batches) ===\n", batches)
	printHealth(w, health, sourceNames)
	return nil
}

// journaledHealth combina la salud por fuente de todos los batches que
// siguen en el WAL.
func journaledHealth(wal *journal.WALJournal) ([]domain.SourceHealth, int, error) {
	entries, err := wal.EntriesAfter(0)
	if err != nil {
		return nil, 0, err
	}
	batches := make([][]domain.SourceHealth, 0, len(entries))
	for _, e := range entries {
		batches = append(batches, e.Report.Sources)
	}
	return domain.CombineSourceHealth(batches...), len(entries), nil
}

func printHealth(w io.Writer, health []domain.SourceHealth, sourceNames []string) {
	table := tablewriter.NewWriter(w)
	table.Header("Source", "Calls", "OK", "Empty", "Failures", "Timeouts", "Success", "Latency", "Last error")
	known := make(map[string]bool, len(health))
	for _, h := range health {
		known[h.Source] = true
		table.Append(
			h.Source,
			fmt.Sprintf("%d", h.Calls),
			fmt.Sprintf("%d", h.Successes),
			fmt.Sprintf("%d", h.Empty),
			fmt.Sprintf("%d", h.Failures),
			fmt.Sprintf("%d", h.Timeouts),
			fmt.Sprintf("%.0f%%", h.SuccessRate()*100),
			h.MeanLatency.Round(time.Millisecond).String(),
			h.LastError,
		)
	}
	// Fuentes configuradas sin llamadas registradas en el journal.
	for _, name := range sourceNames {
		if !known[name] {
			table.Append(name, "0", "0", "0", "0", "0", "-", "-", "")
		}
	}
	table.Render()
}

func printView(ctx context.Context, w io.Writer, p *pipeline.Pipeline, name string, force bool) error {
	var (
		v   any
		err error
	)
	switch name {
	case "dashboard":
		v, err = p.Dashboard(ctx, force)
	case "market":
		v, err = p.MarketAnalysis(ctx, force)
	case "hot":
		v, err = p.HotCards(ctx, force)
	case "recommendations":
		v, err = p.Recommendations(ctx, force)
	default:
		return fmt.Errorf("unknown view %q", name)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRuns(w io.Writer, j *journal.WALJournal, n int) error {
	current := j.CurrentIndex()
	var from uint64
	if current > uint64(n) {
		from = current - uint64(n)
	}
	entries, err := j.EntriesAfter(from)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("#", "Run", "Started", "Duration", "Cards", "Priced", "Empty", "Failures", "Timeouts")
	for _, e := range entries {
		r := e.Report
		table.Append(
			fmt.Sprintf("%d", e.Index),
			r.RunID,
			r.StartedAt.Format(time.DateTime),
			r.Duration().Round(time.Millisecond).String(),
			fmt.Sprintf("%d", r.Cards),
			fmt.Sprintf("%d", r.CardsWithPrices),
			fmt.Sprintf("%d", r.CardsEmpty),
			fmt.Sprintf("%d", len(r.Failures)),
			fmt.Sprintf("%d", r.Timeouts()),
		)
	}
	table.Render()
	return nil
}

// serveMetrics expone /metrics hasta que el contexto se cancele.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
