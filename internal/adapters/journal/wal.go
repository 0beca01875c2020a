// Package journal persiste cada BatchReport en un WAL para inspección
// posterior (qué fuentes fallaron, cuánto tardó cada ejecución).
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/vadiminshakov/gowal"

	"github.com/alejandrodnm/buylist/internal/domain"
)

const (
	DefaultDir   = "./data/journal"
	segmentLimit = 100

	batchKeyPrefix = "batch_"
)

// Entry es un BatchReport leído del WAL junto con su índice.
type Entry struct {
	Index  uint64
	Report domain.BatchReport
}

// WALJournal implementa ports.RunJournal sobre gowal.
type WALJournal struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALJournal abre (o crea) el WAL en dir.
func NewWALJournal(dir string, maxSegments int) (*WALJournal, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if maxSegments <= 0 {
		maxSegments = 10
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           batchKeyPrefix,
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("journal.NewWALJournal: open %q: %w", dir, err)
	}
	return &WALJournal{wal: wal}, nil
}

// Record añade el reporte al WAL con la clave batch_<run_id>.
func (j *WALJournal) Record(_ context.Context, report domain.BatchReport) error {
	if report.RunID == "" {
		return fmt.Errorf("journal.Record: run id is required")
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("journal.Record: marshal: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	next := j.wal.CurrentIndex() + 1
	if err := j.wal.Write(next, batchKeyPrefix+report.RunID, payload); err != nil {
		return fmt.Errorf("journal.Record: write %d: %w", next, err)
	}
	return nil
}

// EntriesAfter devuelve los reportes escritos después del índice dado.
// Los índices ya rotados fuera del WAL se omiten.
func (j *WALJournal) EntriesAfter(index uint64) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	current := j.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	entries := make([]Entry, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := j.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, batchKeyPrefix) {
			continue
		}
		var report domain.BatchReport
		if err := json.Unmarshal(payload, &report); err != nil {
			return nil, fmt.Errorf("journal.EntriesAfter: decode %d: %w", idx, err)
		}
		entries = append(entries, Entry{Index: idx, Report: report})
	}
	return entries, nil
}

// CurrentIndex devuelve el último índice escrito.
func (j *WALJournal) CurrentIndex() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.wal.CurrentIndex()
}

// Close cierra el WAL.
func (j *WALJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.wal.Close()
}
