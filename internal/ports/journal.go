package ports

import (
	"context"

	"github.com/alejandrodnm/buylist/internal/domain"
)

// RunJournal registra cada BatchReport para inspección posterior.
type RunJournal interface {
	Record(ctx context.Context, report domain.BatchReport) error
}
