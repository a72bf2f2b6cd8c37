package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/zappihistory/pkg/types"
)

// CachedDay is the stored history of one day.
type CachedDay struct {
	Records []types.RawRecord
	// FetchedAt is when the records were read from the API.
	FetchedAt time.Time
}

// Database caches the raw history of complete days.
type Database interface {
	// GetSamples returns the cached day and whether the day was cached at all.
	GetSamples(ctx context.Context, serial string, g types.Granularity, day types.Date) (CachedDay, bool, error)
	// PutSamples stores the records of a day, replacing any previous copy.
	PutSamples(ctx context.Context, serial string, g types.Granularity, day types.Date, recs []types.RawRecord) error

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "none", "Storage provider used to cache past days (available: none, firestore, sqlite)")

	var p struct{ Database }

	fs := configuredFirestore()
	sq := configuredSQLite()

	lflag.Do(func() {
		switch *provider {
		case "none", "":
			p.Database = nopDatabase{}
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "sqlite":
			p.Database = sq
			if err := sq.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("sqlite init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}

// nopDatabase never has anything cached and discards writes.
type nopDatabase struct{}

func (nopDatabase) GetSamples(context.Context, string, types.Granularity, types.Date) (CachedDay, bool, error) {
	return CachedDay{}, false, nil
}

func (nopDatabase) PutSamples(context.Context, string, types.Granularity, types.Date, []types.RawRecord) error {
	return nil
}

func (nopDatabase) Close() error {
	return nil
}
