package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/raterudder/zappihistory/pkg/log"
	"github.com/raterudder/zappihistory/pkg/types"
)

// SettleGrace is how long after the end of a day the device may still be
// uploading that day's history.
const SettleGrace = 6 * time.Hour

// Source returns the raw history of a device for one day.
type Source interface {
	Samples(ctx context.Context, serial string, day types.Date, g types.Granularity) ([]types.RawRecord, error)
}

// CachedSource reads settled days through the database and asks Source for
// everything else. A day is settled once SettleGrace has passed since its end,
// and a cached copy is only used if it was fetched after that point. Empty days
// are never cached. Database failures are logged and fall back to Source.
type CachedSource struct {
	Source Source
	DB     Database
	Today  types.Date
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c *CachedSource) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Settled reports whether history fetched at t holds all of day.
func Settled(day types.Date, t time.Time) bool {
	return t.After(day.End(time.Local).Add(SettleGrace))
}

// Samples implements Source.
func (c *CachedSource) Samples(ctx context.Context, serial string, day types.Date, g types.Granularity) ([]types.RawRecord, error) {
	if !day.Before(c.Today) || !Settled(day, c.now()) {
		return c.Source.Samples(ctx, serial, day, g)
	}

	attrs := []any{slog.String("serial", serial), slog.String("day", day.String())}
	cached, ok, err := c.DB.GetSamples(ctx, serial, g, day)
	switch {
	case err != nil:
		log.Ctx(ctx).WarnContext(ctx, "failed to read cached samples", append(attrs, slog.Any("error", err))...)
	case ok && Settled(day, cached.FetchedAt):
		log.Ctx(ctx).DebugContext(ctx, "using cached samples", append(attrs, slog.Int("records", len(cached.Records)))...)
		return cached.Records, nil
	case ok:
		log.Ctx(ctx).DebugContext(ctx, "cached samples predate the end of the day", append(attrs, slog.Time("fetchedAt", cached.FetchedAt))...)
	}

	recs, err := c.Source.Samples(ctx, serial, day, g)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		log.Ctx(ctx).DebugContext(ctx, "not caching day without samples", attrs...)
		return recs, nil
	}
	if err := c.DB.PutSamples(ctx, serial, g, day, recs); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to cache samples", append(attrs, slog.Any("error", err))...)
	}
	return recs, nil
}
