package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/raterudder/zappihistory/pkg/log"
	"github.com/raterudder/zappihistory/pkg/types"
)

// FirestoreProvider implements the Database interface using Google Cloud Firestore.
// Each cached day is a document holding the records as a JSON blob.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured. The project ID may
// be empty in production, where it is detected from the credentials, but the
// emulator has no credentials to detect it from.
func (f *FirestoreProvider) Validate() error {
	if f.projectID == "" && os.Getenv("FIRESTORE_EMULATOR_HOST") != "" {
		return errors.New("firestore-project-id is required when using the firestore emulator")
	}
	if strings.Contains(f.projectID, "/") {
		return fmt.Errorf("invalid firestore-project-id: %q", f.projectID)
	}
	if strings.Contains(f.database, "/") {
		return fmt.Errorf("invalid firestore-database: %q", f.database)
	}
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) dayDoc(serial string, g types.Granularity, day types.Date) (*firestore.DocumentRef, error) {
	if serial == "" {
		return nil, fmt.Errorf("serial cannot be empty")
	}
	return f.client.Collection("devices").Doc(serial).Collection("samples_" + g.String()).Doc(day.String()), nil
}

// GetSamples reads the "devices/{serial}/samples_{granularity}/{day}" document.
func (f *FirestoreProvider) GetSamples(ctx context.Context, serial string, g types.Granularity, day types.Date) (CachedDay, bool, error) {
	ref, err := f.dayDoc(serial, g, day)
	if err != nil {
		return CachedDay{}, false, err
	}
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return CachedDay{}, false, nil
		}
		return CachedDay{}, false, fmt.Errorf("failed to fetch samples doc: %w", err)
	}

	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "samples doc missing json", slog.String("serial", serial), slog.String("day", day.String()))
		return CachedDay{}, false, fmt.Errorf("samples document missing 'json' field: %w", err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "samples doc json not string", slog.String("serial", serial), slog.String("day", day.String()))
		return CachedDay{}, false, fmt.Errorf("samples 'json' field is not a string")
	}

	var cd CachedDay
	// a document without fetchedAt keeps the zero time and is never trusted
	if v, err := doc.DataAt("fetchedAt"); err == nil {
		cd.FetchedAt, _ = v.(time.Time)
	}
	if err := json.Unmarshal([]byte(jsonStr), &cd.Records); err != nil {
		return CachedDay{}, false, fmt.Errorf("failed to unmarshal samples json: %w", err)
	}
	return cd, true, nil
}

// PutSamples writes the records of a day as a JSON string for portability.
func (f *FirestoreProvider) PutSamples(ctx context.Context, serial string, g types.Granularity, day types.Date, recs []types.RawRecord) error {
	jsonBytes, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("failed to marshal samples: %w", err)
	}
	ref, err := f.dayDoc(serial, g, day)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"records":   len(recs),
		"fetchedAt": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to save samples: %w", err)
	}
	return nil
}
