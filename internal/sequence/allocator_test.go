package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/lumenhq/lumen/internal/shared"
)

type fakeRow struct {
	seq int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.seq
	return nil
}

// counterDB emulates the atomic upsert with an in-process counter.
type counterDB struct {
	mu   sync.Mutex
	seqs map[string]int64
	errs []error
}

func (db *counterDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.errs) > 0 {
		err := db.errs[0]
		db.errs = db.errs[1:]
		return fakeRow{err: err}
	}
	if db.seqs == nil {
		db.seqs = make(map[string]int64)
	}
	key := fmt.Sprintf("%v|%v|%v", args[0], args[1], args[2])
	db.seqs[key]++
	return fakeRow{seq: db.seqs[key]}
}

func TestNextFormatsNumber(t *testing.T) {
	db := &counterDB{}
	alloc := NewAllocator(db)
	at := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	first, err := alloc.Next(context.Background(), 7, KindInvoice, at)
	require.NoError(t, err)
	require.Equal(t, "INV-2602-0001", first)

	second, err := alloc.Next(context.Background(), 7, KindInvoice, at)
	require.NoError(t, err)
	require.Equal(t, "INV-2602-0002", second)
}

func TestNextRetriesTransientConflicts(t *testing.T) {
	db := &counterDB{errs: []error{
		&pgconn.PgError{Code: "40001"},
		&pgconn.PgError{Code: "23505"},
	}}
	alloc := NewAllocator(db)

	number, err := alloc.Next(context.Background(), 1, KindQuote, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "QUO-2601-0001", number)
}

func TestNextSurfacesConcurrentModificationAfterRetries(t *testing.T) {
	db := &counterDB{errs: []error{
		&pgconn.PgError{Code: "40001"},
		&pgconn.PgError{Code: "40001"},
		&pgconn.PgError{Code: "40001"},
	}}
	alloc := NewAllocator(db)

	_, err := alloc.Next(context.Background(), 1, KindQuote, time.Now())
	require.ErrorIs(t, err, shared.ErrConcurrentModification)
}

func TestNextDoesNotRetryOtherErrors(t *testing.T) {
	db := &counterDB{errs: []error{errors.New("connection refused")}}
	alloc := NewAllocator(db)

	_, err := alloc.Next(context.Background(), 1, KindSubscription, time.Now())
	require.Error(t, err)
	require.NotErrorIs(t, err, shared.ErrConcurrentModification)
}

func TestNextIsUniqueUnderConcurrency(t *testing.T) {
	db := &counterDB{}
	alloc := NewAllocator(db)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	const workers = 100
	numbers := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := alloc.Next(context.Background(), 42, KindInvoice, at)
			require.NoError(t, err)
			numbers <- n
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[string]struct{}, workers)
	for n := range numbers {
		_, dup := seen[n]
		require.False(t, dup, "duplicate document number %s", n)
		seen[n] = struct{}{}
	}
	require.Len(t, seen, workers)
}
