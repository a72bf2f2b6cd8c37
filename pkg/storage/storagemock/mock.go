package storagemock

import (
	"context"

	"github.com/raterudder/zappihistory/pkg/storage"
	"github.com/raterudder/zappihistory/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetSamples(ctx context.Context, serial string, g types.Granularity, day types.Date) (storage.CachedDay, bool, error) {
	args := m.Called(ctx, serial, g, day)
	// return a miss if not specified
	if len(args) > 0 {
		cd, _ := args.Get(0).(storage.CachedDay)
		return cd, args.Bool(1), args.Error(2)
	}
	return storage.CachedDay{}, false, nil
}

func (m *MockDatabase) PutSamples(ctx context.Context, serial string, g types.Granularity, day types.Date, recs []types.RawRecord) error {
	args := m.Called(ctx, serial, g, day, recs)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
