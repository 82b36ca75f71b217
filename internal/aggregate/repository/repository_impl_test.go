package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/certify/internal/aggregate/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&domain.MonthlyCount{},
		&domain.MonthlyCountByType{},
	))
	return db
}

func TestIncrementMonth_InsertsThenAdds(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.IncrementMonth(ctx, db, "2026-03", 1, now))
	require.NoError(t, repo.IncrementMonth(ctx, db, "2026-03", 1, now))
	require.NoError(t, repo.IncrementMonth(ctx, db, "2026-04", 1, now))

	count, err := repo.GetForMonth(ctx, db, "2026-03")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = repo.GetForMonth(ctx, db, "2026-04")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestGetForMonth_ZeroWhenAbsent(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()

	count, err := repo.GetForMonth(context.Background(), db, "1999-01")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestIncrementMonth_Concurrent(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Now().UTC()

	const workers = 20
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = repo.IncrementMonth(ctx, db, "2026-05", 1, now)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	count, err := repo.GetForMonth(ctx, db, "2026-05")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), count)
}

func TestIncrementMonthByType_SeparateKeys(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.IncrementMonthByType(ctx, db, "2026-03", "ISO9001", 1, now))
	require.NoError(t, repo.IncrementMonthByType(ctx, db, "2026-03", "ISO9001", 1, now))
	require.NoError(t, repo.IncrementMonthByType(ctx, db, "2026-03", domain.TypeUnspecified, 1, now))

	rows, err := repo.GetForMonthByType(ctx, db, "2026-03")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ISO9001", rows[0].CertificateType)
	assert.Equal(t, int64(2), rows[0].Count)
	assert.Equal(t, domain.TypeUnspecified, rows[1].CertificateType)
	assert.Equal(t, int64(1), rows[1].Count)
}

func TestGetRange_OrderedInclusive(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.IncrementMonth(ctx, db, "2026-01", 3, now))
	require.NoError(t, repo.IncrementMonth(ctx, db, "2026-03", 1, now))
	require.NoError(t, repo.IncrementMonth(ctx, db, "2025-12", 5, now))
	require.NoError(t, repo.IncrementMonth(ctx, db, "2026-06", 2, now))

	rows, err := repo.GetRange(ctx, db, "2026-01", "2026-03")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2026-01", rows[0].Month)
	assert.Equal(t, int64(3), rows[0].Count)
	assert.Equal(t, "2026-03", rows[1].Month)
	assert.Equal(t, int64(1), rows[1].Count)
}

func TestReplaceAll_RewritesBothTables(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.IncrementMonth(ctx, db, "2026-01", 99, now))
	require.NoError(t, repo.IncrementMonthByType(ctx, db, "2026-01", "ISO9001", 99, now))

	err := repo.ReplaceAll(ctx, db,
		[]*domain.MonthlyCount{{Month: "2026-02", Count: 4, UpdatedAt: now}},
		[]*domain.MonthlyCountByType{{Month: "2026-02", CertificateType: "ISO9001", Count: 4, UpdatedAt: now}},
	)
	require.NoError(t, err)

	count, err := repo.GetForMonth(ctx, db, "2026-01")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	count, err = repo.GetForMonth(ctx, db, "2026-02")
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	rows, err := repo.GetForMonthByType(ctx, db, "2026-02")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(4), rows[0].Count)
}

func TestParseMonth(t *testing.T) {
	for _, valid := range []string{"2026-01", "1999-12", "2000-06"} {
		month, err := domain.ParseMonth(valid)
		assert.NoError(t, err)
		assert.Equal(t, valid, month)
	}
	for _, invalid := range []string{"", "2026", "2026-13", "2026-00", "2026-1", "26-01", "2026/01"} {
		_, err := domain.ParseMonth(invalid)
		assert.ErrorIs(t, err, domain.ErrInvalidMonth, invalid)
	}
}
