package storage

// sqlite.go: caché de precios, histórico y vistas derivadas en un solo fichero.
//
// Tablas:
//   - `price_cache`: UNA fila por variante de carta (UPSERT). Último CardPriceSet.
//   - `price_history`: append-only, una fila por carta y ejecución. Solo se
//     borra con Prune (retención por antigüedad).
//   - `view_cache`: una fila por vista derivada con su expiración. Las filas
//     expiradas se tratan como ausentes y se purgan al arrancar.
//
// Los timestamps se guardan como unix nanos (INTEGER) para que los rangos y
// el orden no dependan del formato de fecha.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/buylist/internal/domain"
)

const schema = `
-- Último CardPriceSet por variante
CREATE TABLE IF NOT EXISTS price_cache (
    card_key          TEXT PRIMARY KEY,
    card_json         TEXT    NOT NULL,
    is_foil           INTEGER NOT NULL DEFAULT 0,
    quotes_json       TEXT    NOT NULL,
    best_bid          TEXT,
    best_bid_source   TEXT,
    best_offer        TEXT,
    best_offer_source TEXT,
    updated_at        INTEGER NOT NULL
);

-- Serie temporal append-only
CREATE TABLE IF NOT EXISTS price_history (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    card_key        TEXT    NOT NULL,
    run_id          TEXT    NOT NULL,
    recorded_at     INTEGER NOT NULL,
    has_best_bid    INTEGER NOT NULL DEFAULT 0,
    best_bid        TEXT,
    best_bid_source TEXT,
    card_json       TEXT    NOT NULL,
    quotes_json     TEXT    NOT NULL
);

-- Vistas derivadas serializadas
CREATE TABLE IF NOT EXISTS view_cache (
    view_key   TEXT PRIMARY KEY,
    payload    BLOB    NOT NULL,
    created_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_card_at ON price_history(card_key, recorded_at);
CREATE INDEX IF NOT EXISTS idx_history_at      ON price_history(recorded_at);
CREATE INDEX IF NOT EXISTS idx_cache_updated   ON price_cache(updated_at);
CREATE INDEX IF NOT EXISTS idx_views_expires   ON view_cache(expires_at);
`

// Option configura el storage.
type Option func(*SQLiteStorage)

// WithClock reemplaza time.Now para la expiración de vistas (tests).
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStorage) { s.now = now }
}

// SQLiteStorage implementa ports.PriceStore, ports.HistoryStore y
// ports.ViewStore usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada, aplica el
// schema y purga las vistas expiradas.
func NewSQLiteStorage(path string, opts ...Option) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := s.SweepExpiredViews(context.Background()); err != nil {
		slog.Warn("expired view sweep failed", "path", path, "err", err)
	}
	return s, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- price_cache ---

// SavePriceSet hace UPSERT del set de la carta. Una sola sentencia: el
// reemplazo es atómico para cualquier lector.
func (s *SQLiteStorage) SavePriceSet(ctx context.Context, set domain.CardPriceSet) error {
	cardJSON, quotesJSON, err := encodeSet(set.Card, set.Prices)
	if err != nil {
		return fmt.Errorf("storage.SavePriceSet: %w", err)
	}
	bid, bidSrc := quoteColumns(set.BestBid)
	offer, offerSrc := quoteColumns(set.BestOffer)

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO price_cache
			(card_key, card_json, is_foil, quotes_json, best_bid, best_bid_source,
			 best_offer, best_offer_source, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(card_key) DO UPDATE SET
			card_json         = excluded.card_json,
			is_foil           = excluded.is_foil,
			quotes_json       = excluded.quotes_json,
			best_bid          = excluded.best_bid,
			best_bid_source   = excluded.best_bid_source,
			best_offer        = excluded.best_offer,
			best_offer_source = excluded.best_offer_source,
			updated_at        = excluded.updated_at
	`,
		set.Card.Key(), cardJSON, boolInt(set.Card.IsFoil()), quotesJSON,
		bid, bidSrc, offer, offerSrc, set.UpdatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("storage.SavePriceSet: upsert %s: %w", set.Card.Key(), err)
	}
	return nil
}

// LoadPriceSet devuelve el set guardado de la carta.
func (s *SQLiteStorage) LoadPriceSet(ctx context.Context, card domain.CardIdentity) (domain.CardPriceSet, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT card_json, quotes_json, updated_at FROM price_cache WHERE card_key = ?`,
		card.Key(),
	)
	set, err := scanSet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CardPriceSet{}, false, nil
	}
	if err != nil {
		return domain.CardPriceSet{}, false, fmt.Errorf("storage.LoadPriceSet: %w", err)
	}
	return set, true, nil
}

// ListPriceSets devuelve todos los sets guardados, ordenados por clave.
func (s *SQLiteStorage) ListPriceSets(ctx context.Context) ([]domain.CardPriceSet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT card_json, quotes_json, updated_at FROM price_cache ORDER BY card_key`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.ListPriceSets: query: %w", err)
	}
	defer rows.Close()

	var sets []domain.CardPriceSet
	for rows.Next() {
		set, err := scanSet(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListPriceSets: %w", err)
		}
		sets = append(sets, set)
	}
	return sets, rows.Err()
}

// DeletePriceSetsBefore borra las filas con updated_at anterior al corte.
func (s *SQLiteStorage) DeletePriceSetsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM price_cache WHERE updated_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("storage.DeletePriceSetsBefore: %w", err)
	}
	return res.RowsAffected()
}

// ClearPriceSets vacía la caché de precios.
func (s *SQLiteStorage) ClearPriceSets(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM price_cache`); err != nil {
		return fmt.Errorf("storage.ClearPriceSets: %w", err)
	}
	return nil
}

// --- price_history ---

// Append inserta los registros en una transacción. Nunca actualiza filas.
func (s *SQLiteStorage) Append(ctx context.Context, records []domain.PriceHistoryRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Append: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_history
			(card_key, run_id, recorded_at, has_best_bid, best_bid, best_bid_source,
			 card_json, quotes_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.Append: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		cardJSON, quotesJSON, err := encodeSet(r.Card, r.Quotes)
		if err != nil {
			return fmt.Errorf("storage.Append: %w", err)
		}
		var bid *string
		if r.HasBestBid {
			v := r.BestBidAmount.String()
			bid = &v
		}
		if _, err := stmt.ExecContext(ctx,
			r.Card.Key(), r.RunID, r.Timestamp.UnixNano(), boolInt(r.HasBestBid),
			bid, r.BestBidSource, cardJSON, quotesJSON,
		); err != nil {
			return fmt.Errorf("storage.Append: insert %s: %w", r.Card.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Append: commit: %w", err)
	}
	return nil
}

// Query devuelve los registros de la carta desde since, del más antiguo al
// más reciente (a igual timestamp, en orden de inserción).
func (s *SQLiteStorage) Query(ctx context.Context, card domain.CardIdentity, since time.Time) ([]domain.PriceHistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, recorded_at, has_best_bid, best_bid, best_bid_source, card_json, quotes_json
		FROM price_history
		WHERE card_key = ? AND recorded_at >= ?
		ORDER BY recorded_at ASC, id ASC
	`, card.Key(), since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("storage.Query: %w", err)
	}
	defer rows.Close()

	records := make([]domain.PriceHistoryRecord, 0)
	for rows.Next() {
		var (
			r                    domain.PriceHistoryRecord
			at                   int64
			hasBid               int
			bid, bidSrc          sql.NullString
			cardJSON, quotesJSON string
		)
		if err := rows.Scan(&r.RunID, &at, &hasBid, &bid, &bidSrc, &cardJSON, &quotesJSON); err != nil {
			return nil, fmt.Errorf("storage.Query: scan row: %w", err)
		}
		r.Timestamp = time.Unix(0, at).UTC()
		r.HasBestBid = hasBid == 1
		r.BestBidSource = bidSrc.String
		if bid.Valid {
			if r.BestBidAmount, err = decimal.NewFromString(bid.String); err != nil {
				return nil, fmt.Errorf("storage.Query: best_bid %q: %w", bid.String, err)
			}
		}
		if r.Card, r.Quotes, err = decodeSet(cardJSON, quotesJSON); err != nil {
			return nil, fmt.Errorf("storage.Query: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Prune borra los registros anteriores a olderThan.
func (s *SQLiteStorage) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM price_history WHERE recorded_at < ?`, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("storage.Prune: %w", err)
	}
	return res.RowsAffected()
}

// Stats resume el histórico.
func (s *SQLiteStorage) Stats(ctx context.Context) (domain.HistoryStats, error) {
	var (
		st             domain.HistoryStats
		oldest, newest sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT card_key), COUNT(*), MIN(recorded_at), MAX(recorded_at)
		FROM price_history
	`).Scan(&st.TotalCards, &st.TotalRecords, &oldest, &newest)
	if err != nil {
		return st, fmt.Errorf("storage.Stats: %w", err)
	}
	if oldest.Valid {
		st.Oldest = time.Unix(0, oldest.Int64).UTC()
	}
	if newest.Valid {
		st.Newest = time.Unix(0, newest.Int64).UTC()
	}
	if st.TotalCards > 0 {
		st.AverageRecordsPerCard = float64(st.TotalRecords) / float64(st.TotalCards)
	}
	return st, nil
}

// --- view_cache ---

// GetView devuelve el payload si la vista existe y no expiró.
func (s *SQLiteStorage) GetView(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM view_cache WHERE view_key = ? AND expires_at > ?`,
		key, s.now().UnixNano(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage.GetView: %w", err)
	}
	return payload, true, nil
}

// SetView hace UPSERT de la vista con su expiración.
func (s *SQLiteStorage) SetView(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	now := s.now()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO view_cache (view_key, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(view_key) DO UPDATE SET
			payload    = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`, key, payload, now.UnixNano(), now.Add(ttl).UnixNano()); err != nil {
		return fmt.Errorf("storage.SetView: %s: %w", key, err)
	}
	return nil
}

// DeleteView borra una vista.
func (s *SQLiteStorage) DeleteView(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM view_cache WHERE view_key = ?`, key); err != nil {
		return fmt.Errorf("storage.DeleteView: %w", err)
	}
	return nil
}

// DeleteViewPrefix borra todas las vistas cuya clave empieza por prefix.
func (s *SQLiteStorage) DeleteViewPrefix(ctx context.Context, prefix string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM view_cache WHERE view_key LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%",
	); err != nil {
		return fmt.Errorf("storage.DeleteViewPrefix: %w", err)
	}
	return nil
}

// SweepExpiredViews purga físicamente las vistas expiradas.
func (s *SQLiteStorage) SweepExpiredViews(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM view_cache WHERE expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("storage.SweepExpiredViews: %w", err)
	}
	return res.RowsAffected()
}

// --- helpers internos ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSet(row rowScanner) (domain.CardPriceSet, error) {
	var (
		cardJSON, quotesJSON string
		updated              int64
	)
	if err := row.Scan(&cardJSON, &quotesJSON, &updated); err != nil {
		return domain.CardPriceSet{}, err
	}
	card, prices, err := decodeSet(cardJSON, quotesJSON)
	if err != nil {
		return domain.CardPriceSet{}, err
	}
	set := domain.NewCardPriceSet(card, prices)
	set.UpdatedAt = time.Unix(0, updated).UTC()
	return set, nil
}

func encodeSet(card domain.CardIdentity, prices map[string][]domain.PriceQuote) (string, string, error) {
	if prices == nil {
		prices = map[string][]domain.PriceQuote{}
	}
	c, err := json.Marshal(card)
	if err != nil {
		return "", "", fmt.Errorf("encode card: %w", err)
	}
	q, err := json.Marshal(prices)
	if err != nil {
		return "", "", fmt.Errorf("encode quotes: %w", err)
	}
	return string(c), string(q), nil
}

func decodeSet(cardJSON, quotesJSON string) (domain.CardIdentity, map[string][]domain.PriceQuote, error) {
	var card domain.CardIdentity
	if err := json.Unmarshal([]byte(cardJSON), &card); err != nil {
		return card, nil, fmt.Errorf("decode card: %w", err)
	}
	prices := make(map[string][]domain.PriceQuote)
	if err := json.Unmarshal([]byte(quotesJSON), &prices); err != nil {
		return card, nil, fmt.Errorf("decode quotes: %w", err)
	}
	return card, prices, nil
}

func quoteColumns(q *domain.PriceQuote) (*string, *string) {
	if q == nil {
		return nil, nil
	}
	amount := q.Amount.String()
	source := q.Source
	return &amount, &source
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
