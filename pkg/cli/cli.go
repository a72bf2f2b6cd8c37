package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/zappihistory/pkg/config"
	"github.com/raterudder/zappihistory/pkg/log"
	"github.com/raterudder/zappihistory/pkg/myenergi"
	"github.com/raterudder/zappihistory/pkg/report"
	"github.com/raterudder/zappihistory/pkg/storage"
	"github.com/raterudder/zappihistory/pkg/types"
)

// ErrUsage wraps errors caused by invalid command line arguments.
var ErrUsage = errors.New("invalid arguments")

// Devices lists the Zappis on the account.
type Devices interface {
	Zappis(ctx context.Context) ([]types.Device, error)
}

// Options select what is reported.
type Options struct {
	Granularity types.Granularity
	TotalsOnly  bool
	ShowMonth   bool
	JSON        bool
	// Date is the day to report, or the last day of the month rollup.
	Date types.Date
}

// Runner reports on every Zappi on the account.
type Runner struct {
	client  *myenergi.Client
	storage storage.Database
	out     io.Writer

	configPath string
	perMinute  bool
	totalsOnly bool
	showMonth  bool
	json       bool
	year       string
	month      string
	day        string
}

// Configured initializes the Runner with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(c *myenergi.Client, s storage.Database) *Runner {
	r := &Runner{
		client:  c,
		storage: s,
		out:     os.Stdout,
	}

	configPath := lflag.String("config", config.DefaultPath, "YAML file holding the myenergi username (hub serial) and password (API key)")
	perMinute := lflag.Bool("per-minute", false, "Report per-minute samples instead of hourly")
	totalsOnly := lflag.Bool("totals", false, "Only print the totals line of each day")
	showMonth := lflag.Bool("show-month", false, "Report every day of the month up to --day")
	asJSON := lflag.Bool("json", false, "Print the hourly totals of each zappi as JSON")
	year := lflag.String("year", "", "Year to report (defaults to the current year)")
	month := lflag.String("month", "", "Month to report, 1-12 (defaults to the current month)")
	day := lflag.String("day", "", "Day of the month to report (defaults to today)")

	lflag.Do(func() {
		r.configPath = *configPath
		r.perMinute = *perMinute
		r.totalsOnly = *totalsOnly
		r.showMonth = *showMonth
		r.json = *asJSON
		r.year = *year
		r.month = *month
		r.day = *day
	})

	return r
}

// Options validates the flags against today's date.
func (r *Runner) Options(today types.Date) (Options, error) {
	date, err := today.Override(r.year, r.month, r.day)
	if err != nil {
		return Options{}, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	opts := Options{
		Granularity: types.Hourly,
		TotalsOnly:  r.totalsOnly,
		ShowMonth:   r.showMonth,
		JSON:        r.json,
		Date:        date,
	}
	if r.perMinute {
		opts.Granularity = types.PerMinute
	}
	return opts, nil
}

// Run validates the arguments, logs in and writes the report. Errors caused
// by the arguments wrap ErrUsage.
func (r *Runner) Run(ctx context.Context) error {
	today := types.Today()
	opts, err := r.Options(today)
	if err != nil {
		return err
	}
	if err := r.client.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}

	creds, err := config.LoadCredentials(r.configPath)
	if err != nil {
		return err
	}
	if err := r.client.Authenticate(ctx, creds); err != nil {
		return err
	}

	src := &storage.CachedSource{
		Source: r.client,
		DB:     r.storage,
		Today:  today,
	}
	return Report(ctx, r.out, r.client, src, opts)
}

// Report writes the report of every Zappi to w, one device at a time. A
// device whose history cannot be fetched is skipped and its error is part of
// the returned error.
func Report(ctx context.Context, w io.Writer, devices Devices, src report.Source, opts Options) error {
	zappis, err := devices.Zappis(ctx)
	if err != nil {
		return fmt.Errorf("failed to list zappis: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "reporting on zappis", slog.Int("count", len(zappis)), slog.String("date", opts.Date.String()))

	doc := make(map[string]map[string]string)
	var errs []error
	for _, z := range zappis {
		dctx := log.WithAttrs(ctx, slog.String("serial", z.Serial))
		if err := reportDevice(dctx, w, z.Serial, src, opts, doc); err != nil {
			log.Ctx(dctx).ErrorContext(dctx, "failed to report on zappi", slog.Any("error", err))
			errs = append(errs, fmt.Errorf("zappi %s: %w", z.Serial, err))
		}
	}

	if opts.JSON {
		if err := report.WriteJSON(w, doc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func reportDevice(ctx context.Context, w io.Writer, serial string, src report.Source, opts Options, doc map[string]map[string]string) error {
	// JSON takes precedence over --show-month and always carries hourly totals
	if opts.JSON {
		r := &report.Reporter{Source: src, Granularity: types.Hourly, TotalsOnly: true}
		t, err := r.Day(ctx, serial, opts.Date)
		if err != nil {
			return err
		}
		doc[serial] = t.TotalsJSON()
		return nil
	}

	r := &report.Reporter{Source: src, Granularity: opts.Granularity, TotalsOnly: opts.TotalsOnly}
	f := report.NewFormatter(w)

	if opts.ShowMonth {
		m, err := r.Month(ctx, serial, opts.Date, func(t *report.Table) error {
			if _, err := fmt.Fprintf(w, "Day %d\n", t.Date.Day); err != nil {
				return err
			}
			return f.WriteDay(t)
		})
		if err != nil {
			return err
		}
		return f.WriteMonth(m)
	}

	t, err := r.Day(ctx, serial, opts.Date)
	if err != nil {
		return err
	}
	return f.WriteDay(t)
}
