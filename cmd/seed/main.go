package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/zappihistory/pkg/log"
	"github.com/raterudder/zappihistory/pkg/storage"
	"github.com/raterudder/zappihistory/pkg/types"
)

func main() {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	}
	serial := lflag.String("seed-serial", "16000001", "Zappi serial to seed history for")
	days := lflag.Int("seed-days", 7, "Number of past days to seed, ending yesterday")
	s := storage.Configured()
	lflag.Configure()

	ctx := context.Background()
	defer s.Close()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock history")

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	today := time.Now()
	for i := *days; i > 0; i-- {
		day := types.DateOf(today.AddDate(0, 0, -i))
		recs, summary := simulateDay(rng, day)
		if err := s.PutSamples(ctx, *serial, types.Hourly, day, recs); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to seed samples", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Seeded %s for %s: %s\n", day, *serial, summary)
	}

	log.Ctx(ctx).InfoContext(ctx, "seeded mock history successfully")
}

// simulateDay builds the hourly records of a sunny day with an EV plugged in
// that soaks up the solar surplus. Channel values are watt-seconds over the
// hour, the way the API reports them.
func simulateDay(rng *rand.Rand, day types.Date) ([]types.RawRecord, string) {
	const (
		SolarPeakKW = 6.0
		HomeAvgKW   = 0.8
		ChargerKW   = 7.2
	)
	weekday := time.Date(day.Year, time.Month(day.Month), day.Day, 0, 0, 0, 0, time.Local).Weekday()

	var totalImp, totalExp, totalGen, totalDiv float64
	recs := make([]types.RawRecord, 0, 24)
	for hour := 0; hour < 24; hour++ {
		// Solar (bell curve)
		solarKW := 0.0
		if hour > 6 && hour < 19 {
			dist := math.Abs(float64(hour) - 13.0)
			solarKW = SolarPeakKW * math.Exp(-(dist*dist)/12.0)
		}

		// Home usage
		homeKW := HomeAvgKW + rng.Float64()*0.5
		if hour >= 7 && hour < 9 {
			homeKW += 1.5 // Breakfast
		} else if hour >= 18 && hour < 22 {
			homeKW += 2.5 // Evening
		}

		// Divert surplus into the car
		divertKW := 0.0
		if surplus := solarKW - homeKW; surplus > 1.4 {
			divertKW = math.Min(surplus, ChargerKW)
		}

		gridKW := homeKW + divertKW - solarKW
		rec := types.RawRecord{
			"hr":  float64(hour),
			"dow": weekday.String()[:3],
			"yr":  float64(day.Year),
			"mon": float64(day.Month),
			"dom": float64(day.Day),
			"v1":  float64(2380 + rng.Intn(60)),
			"frq": float64(4990 + rng.Intn(20)),
		}
		if hour == 0 {
			delete(rec, "hr")
		}
		if solarKW > 0 {
			rec["gep"] = math.Round(solarKW * 1000 * 3600)
			totalGen += solarKW
		}
		if divertKW > 0 {
			rec["h1d"] = math.Round(divertKW * 1000 * 3600)
			totalDiv += divertKW
		}
		if gridKW > 0 {
			rec["imp"] = math.Round(gridKW * 1000 * 3600)
			rec["nect1"] = rec["imp"]
			totalImp += gridKW
		} else if gridKW < 0 {
			rec["exp"] = math.Round(-gridKW * 1000 * 3600)
			rec["pect1"] = rec["exp"]
			totalExp += -gridKW
		}
		recs = append(recs, rec)
	}

	summary := fmt.Sprintf("imported %.1fkWh, exported %.1fkWh, generated %.1fkWh, diverted %.1fkWh",
		totalImp, totalExp, totalGen, totalDiv)
	return recs, summary
}
