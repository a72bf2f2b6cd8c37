package storage_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/raterudder/zappihistory/pkg/log"
	"github.com/raterudder/zappihistory/pkg/storage"
	"github.com/raterudder/zappihistory/pkg/storage/storagemock"
	"github.com/raterudder/zappihistory/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Samples(ctx context.Context, serial string, day types.Date, g types.Granularity) ([]types.RawRecord, error) {
	args := m.Called(ctx, serial, day, g)
	recs, _ := args.Get(0).([]types.RawRecord)
	return recs, args.Error(1)
}

func TestCachedSource(t *testing.T) {
	ctx := context.Background()
	today := types.Date{Year: 2024, Month: 6, Day: 10}
	past := today.WithDay(9)
	recs := []types.RawRecord{{"hr": 0.0, "imp": 3600.0}}
	now := func() time.Time { return today.Start(time.Local).Add(12 * time.Hour) }
	settledAt := past.End(time.Local).Add(storage.SettleGrace + time.Minute)

	t.Run("Hit", func(t *testing.T) {
		src := &mockSource{}
		db := &storagemock.MockDatabase{}
		db.On("GetSamples", mock.Anything, "16000001", types.Hourly, past).Return(storage.CachedDay{Records: recs, FetchedAt: settledAt}, true, nil)

		c := &storage.CachedSource{Source: src, DB: db, Today: today, Now: now}
		got, err := c.Samples(ctx, "16000001", past, types.Hourly)
		require.NoError(t, err)
		assert.Equal(t, recs, got)
		src.AssertNotCalled(t, "Samples", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		db.AssertExpectations(t)
	})

	t.Run("MissStores", func(t *testing.T) {
		src := &mockSource{}
		src.On("Samples", mock.Anything, "16000001", past, types.Hourly).Return(recs, nil)
		db := &storagemock.MockDatabase{}
		db.On("GetSamples", mock.Anything, "16000001", types.Hourly, past).Return(storage.CachedDay{}, false, nil)
		db.On("PutSamples", mock.Anything, "16000001", types.Hourly, past, recs).Return(nil)

		c := &storage.CachedSource{Source: src, DB: db, Today: today, Now: now}
		got, err := c.Samples(ctx, "16000001", past, types.Hourly)
		require.NoError(t, err)
		assert.Equal(t, recs, got)
		src.AssertExpectations(t)
		db.AssertExpectations(t)
	})

	t.Run("TodayBypassesCache", func(t *testing.T) {
		src := &mockSource{}
		src.On("Samples", mock.Anything, "16000001", today, types.PerMinute).Return(recs, nil)
		db := &storagemock.MockDatabase{}

		c := &storage.CachedSource{Source: src, DB: db, Today: today, Now: now}
		got, err := c.Samples(ctx, "16000001", today, types.PerMinute)
		require.NoError(t, err)
		assert.Equal(t, recs, got)
		db.AssertNotCalled(t, "GetSamples", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		db.AssertNotCalled(t, "PutSamples", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("DatabaseErrorsFallThrough", func(t *testing.T) {
		src := &mockSource{}
		src.On("Samples", mock.Anything, "16000001", past, types.Hourly).Return(recs, nil)
		db := &storagemock.MockDatabase{}
		db.On("GetSamples", mock.Anything, "16000001", types.Hourly, past).Return(storage.CachedDay{}, false, errors.New("unavailable"))
		db.On("PutSamples", mock.Anything, "16000001", types.Hourly, past, recs).Return(errors.New("unavailable"))

		c := &storage.CachedSource{Source: src, DB: db, Today: today, Now: now}
		got, err := c.Samples(ctx, "16000001", past, types.Hourly)
		require.NoError(t, err)
		assert.Equal(t, recs, got)
	})

	t.Run("SourceErrorNotCached", func(t *testing.T) {
		boom := errors.New("boom")
		src := &mockSource{}
		src.On("Samples", mock.Anything, "16000001", past, types.Hourly).Return(nil, boom)
		db := &storagemock.MockDatabase{}
		db.On("GetSamples", mock.Anything, "16000001", types.Hourly, past).Return(storage.CachedDay{}, false, nil)

		c := &storage.CachedSource{Source: src, DB: db, Today: today, Now: now}
		_, err := c.Samples(ctx, "16000001", past, types.Hourly)
		assert.ErrorIs(t, err, boom)
		db.AssertNotCalled(t, "PutSamples", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("EmptyDayNotCached", func(t *testing.T) {
		src := &mockSource{}
		src.On("Samples", mock.Anything, "16000001", past, types.Hourly).Return([]types.RawRecord(nil), nil).Once()
		src.On("Samples", mock.Anything, "16000001", past, types.Hourly).Return(recs, nil).Once()
		db := &storagemock.MockDatabase{}
		db.On("GetSamples", mock.Anything, "16000001", types.Hourly, past).Return(storage.CachedDay{}, false, nil)
		db.On("PutSamples", mock.Anything, "16000001", types.Hourly, past, recs).Return(nil).Once()

		c := &storage.CachedSource{Source: src, DB: db, Today: today, Now: now}
		first, err := c.Samples(ctx, "16000001", past, types.Hourly)
		require.NoError(t, err)
		assert.Empty(t, first)

		second, err := c.Samples(ctx, "16000001", past, types.Hourly)
		require.NoError(t, err)
		assert.Equal(t, recs, second)
		src.AssertNumberOfCalls(t, "Samples", 2)
		db.AssertNumberOfCalls(t, "PutSamples", 1)
	})

	t.Run("EarlyFetchRefreshed", func(t *testing.T) {
		fresh := []types.RawRecord{{"hr": 0.0, "imp": 3600.0}, {"hr": 1.0, "imp": 7200.0}}
		src := &mockSource{}
		src.On("Samples", mock.Anything, "16000001", past, types.Hourly).Return(fresh, nil)
		db := &storagemock.MockDatabase{}
		// fetched shortly after midnight, before the device finished uploading
		early := storage.CachedDay{Records: recs, FetchedAt: past.End(time.Local).Add(10 * time.Minute)}
		db.On("GetSamples", mock.Anything, "16000001", types.Hourly, past).Return(early, true, nil)
		db.On("PutSamples", mock.Anything, "16000001", types.Hourly, past, fresh).Return(nil)

		c := &storage.CachedSource{Source: src, DB: db, Today: today, Now: now}
		got, err := c.Samples(ctx, "16000001", past, types.Hourly)
		require.NoError(t, err)
		assert.Equal(t, fresh, got)
		src.AssertExpectations(t)
		db.AssertExpectations(t)
	})

	t.Run("UnsettledDayBypassesCache", func(t *testing.T) {
		src := &mockSource{}
		src.On("Samples", mock.Anything, "16000001", past, types.Hourly).Return(recs, nil)
		db := &storagemock.MockDatabase{}

		early := func() time.Time { return today.Start(time.Local).Add(time.Hour) }
		c := &storage.CachedSource{Source: src, DB: db, Today: today, Now: early}
		got, err := c.Samples(ctx, "16000001", past, types.Hourly)
		require.NoError(t, err)
		assert.Equal(t, recs, got)
		db.AssertNotCalled(t, "GetSamples", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		db.AssertNotCalled(t, "PutSamples", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestSettled(t *testing.T) {
	day := types.Date{Year: 2024, Month: 6, Day: 9}
	end := day.End(time.Local)

	assert.False(t, storage.Settled(day, day.Start(time.Local).Add(time.Hour)))
	assert.False(t, storage.Settled(day, end))
	assert.False(t, storage.Settled(day, end.Add(storage.SettleGrace)))
	assert.True(t, storage.Settled(day, end.Add(storage.SettleGrace+time.Second)))
	assert.False(t, storage.Settled(day, time.Time{}))
}
