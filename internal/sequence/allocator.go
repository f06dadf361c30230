// Package sequence hands out invoice numbers from a single shared counter
// row, race-free under concurrent checkouts.
package sequence

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxRetries bounds the compare-and-swap loop under contention. Each retry
// re-reads the counter, so a lost race never reuses a number.
const maxRetries = 8

var (
	ErrSequenceContention = errors.New("sequence_contention")
	ErrInvalidPrefix      = errors.New("invalid_sequence_prefix")
)

// Allocator allocates strictly increasing invoice numbers per prefix.
type Allocator interface {
	Allocate(ctx context.Context, prefix string) (string, error)
	// AllocateTx allocates within an enclosing transaction so the number
	// commits or rolls back with the invoice that uses it.
	AllocateTx(ctx context.Context, tx *gorm.DB, prefix string) (string, error)
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type allocator struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewAllocator(p Params) Allocator {
	return &allocator{
		db:    p.DB,
		log:   p.Log.Named("sequence.allocator"),
		genID: p.GenID,
	}
}

func (a *allocator) Allocate(ctx context.Context, prefix string) (string, error) {
	return a.AllocateTx(ctx, a.db, prefix)
}

func (a *allocator) AllocateTx(ctx context.Context, tx *gorm.DB, prefix string) (string, error) {
	if prefix == "" {
		return "", ErrInvalidPrefix
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		current, err := a.readCounter(ctx, tx, prefix)
		if err != nil {
			return "", err
		}

		// Guarded update: zero rows affected means a concurrent
		// allocation advanced the counter first. Retry the whole
		// read-increment-write; never reuse the stale read.
		result := tx.WithContext(ctx).Exec(
			`UPDATE invoice_sequences
			 SET next_no = next_no + 1, updated_at = ?
			 WHERE prefix = ? AND next_no = ?`,
			time.Now().UTC(),
			prefix,
			current,
		)
		if result.Error != nil {
			return "", result.Error
		}
		if result.RowsAffected == 0 {
			continue
		}

		return FormatInvoiceNumber(prefix, time.Now().UTC(), current)
	}

	a.log.Warn("invoice sequence allocation exhausted retries", zap.String("prefix", prefix))
	return "", ErrSequenceContention
}

// readCounter returns the current next_no for the prefix, lazily inserting
// the row at 1 when the prefix has never been used.
func (a *allocator) readCounter(ctx context.Context, tx *gorm.DB, prefix string) (int64, error) {
	var current int64
	err := tx.WithContext(ctx).Raw(
		`SELECT next_no FROM invoice_sequences WHERE prefix = ?`,
		prefix,
	).Scan(&current).Error
	if err != nil {
		return 0, err
	}
	if current > 0 {
		return current, nil
	}

	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO invoice_sequences (id, prefix, next_no, updated_at)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT (prefix) DO NOTHING`,
		a.genID.Generate(),
		prefix,
		time.Now().UTC(),
	).Error; err != nil {
		return 0, err
	}

	err = tx.WithContext(ctx).Raw(
		`SELECT next_no FROM invoice_sequences WHERE prefix = ?`,
		prefix,
	).Scan(&current).Error
	if err != nil {
		return 0, err
	}
	return current, nil
}
