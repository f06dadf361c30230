package sequence

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupAllocator(t *testing.T) (Allocator, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.Exec(`CREATE TABLE invoice_sequences (
		id BIGINT PRIMARY KEY,
		prefix TEXT NOT NULL UNIQUE,
		next_no BIGINT NOT NULL DEFAULT 1,
		updated_at TIMESTAMP NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create invoice_sequences: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	return NewAllocator(Params{DB: db, Log: zap.NewNop(), GenID: node}), db
}

func TestAllocateCreatesCounterLazily(t *testing.T) {
	alloc, db := setupAllocator(t)
	ctx := context.Background()

	number, err := alloc.Allocate(ctx, "INV")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	year := time.Now().UTC().Format("2006")
	want := fmt.Sprintf("INV-%s000001", year)
	if number != want {
		t.Fatalf("expected first number %s, got %s", want, number)
	}

	var nextNo int64
	if err := db.Raw(`SELECT next_no FROM invoice_sequences WHERE prefix = ?`, "INV").Scan(&nextNo).Error; err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if nextNo != 2 {
		t.Fatalf("expected counter advanced to 2, got %d", nextNo)
	}
}

func TestAllocateIsStrictlyIncreasingAndDistinct(t *testing.T) {
	alloc, _ := setupAllocator(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	var last string
	for i := 0; i < 25; i++ {
		number, err := alloc.Allocate(ctx, "INV")
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		if seen[number] {
			t.Fatalf("duplicate invoice number %s", number)
		}
		seen[number] = true
		if last != "" && number <= last {
			t.Fatalf("expected %s > %s", number, last)
		}
		last = number
	}
}

func TestAllocatePrefixesAreIndependent(t *testing.T) {
	alloc, _ := setupAllocator(t)
	ctx := context.Background()

	if _, err := alloc.Allocate(ctx, "INV"); err != nil {
		t.Fatalf("allocate INV: %v", err)
	}
	number, err := alloc.Allocate(ctx, "CM")
	if err != nil {
		t.Fatalf("allocate CM: %v", err)
	}

	year := time.Now().UTC().Format("2006")
	want := fmt.Sprintf("CM-%s000001", year)
	if number != want {
		t.Fatalf("expected %s, got %s", want, number)
	}
}

func TestAllocateRejectsEmptyPrefix(t *testing.T) {
	alloc, _ := setupAllocator(t)

	if _, err := alloc.Allocate(context.Background(), ""); err != ErrInvalidPrefix {
		t.Fatalf("expected ErrInvalidPrefix, got %v", err)
	}
}

func TestFormatInvoiceNumber(t *testing.T) {
	issued := time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC)

	number, err := FormatInvoiceNumber("INV", issued, 42)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if number != "INV-2026000042" {
		t.Fatalf("expected INV-2026000042, got %s", number)
	}

	if _, err := FormatInvoiceNumber("", issued, 1); err == nil {
		t.Fatalf("expected error for empty prefix")
	}
	if _, err := FormatInvoiceNumber("INV", issued, 0); err == nil {
		t.Fatalf("expected error for non-positive sequence")
	}
}

func TestAllocateRetriesWhenCounterAdvancesUnderneath(t *testing.T) {
	alloc, db := setupAllocator(t)

	// A competing allocation advances the counter between this caller's
	// read and its guarded update, forcing the compare-and-swap to retry.
	raced := false
	err := db.Callback().Raw().Before("gorm:raw").Register("competing_advance_once", func(tx *gorm.DB) {
		if raced || !strings.Contains(tx.Statement.SQL.String(), "UPDATE invoice_sequences") {
			return
		}
		raced = true
		session := tx.Session(&gorm.Session{NewDB: true})
		if err := session.Exec(
			`UPDATE invoice_sequences SET next_no = next_no + 1 WHERE prefix = ?`, "INV",
		).Error; err != nil {
			t.Errorf("competing advance: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	number, err := alloc.Allocate(context.Background(), "INV")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if !raced {
		t.Fatalf("competing advance never ran")
	}

	// The stale read of 1 lost; the retry must hand out 2, never reuse 1.
	year := time.Now().UTC().Format("2006")
	want := fmt.Sprintf("INV-%s000002", year)
	if number != want {
		t.Fatalf("expected retried allocation %s, got %s", want, number)
	}

	var nextNo int64
	if err := db.Raw(`SELECT next_no FROM invoice_sequences WHERE prefix = ?`, "INV").Scan(&nextNo).Error; err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if nextNo != 3 {
		t.Fatalf("expected counter at 3, got %d", nextNo)
	}
}

func TestAllocateConcurrentCallersGetDistinctNumbers(t *testing.T) {
	alloc, db := setupAllocator(t)
	ctx := context.Background()

	const workers = 4
	const perWorker = 5

	var (
		mu      sync.Mutex
		numbers []string
		errs    []error
	)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				number, err := alloc.Allocate(ctx, "INV")
				mu.Lock()
				if err != nil {
					errs = append(errs, err)
				} else {
					numbers = append(numbers, number)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(errs) != 0 {
		t.Fatalf("allocation errors: %v", errs)
	}
	seen := make(map[string]bool)
	for _, number := range numbers {
		if seen[number] {
			t.Fatalf("duplicate invoice number %s", number)
		}
		seen[number] = true
	}
	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d distinct numbers, got %d", workers*perWorker, len(seen))
	}

	// The counter advanced exactly once per allocation: no double use,
	// no gaps.
	var nextNo int64
	if err := db.Raw(`SELECT next_no FROM invoice_sequences WHERE prefix = ?`, "INV").Scan(&nextNo).Error; err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if nextNo != int64(workers*perWorker)+1 {
		t.Fatalf("expected counter at %d, got %d", workers*perWorker+1, nextNo)
	}
}
