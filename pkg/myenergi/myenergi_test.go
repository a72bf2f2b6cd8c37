package myenergi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/raterudder/zappihistory/pkg/log"
	"github.com/raterudder/zappihistory/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

var testCreds = types.Credentials{Username: "10000001", Password: "api-key"}

func TestMyEnergi(t *testing.T) {
	t.Run("AuthenticateFollowsASN", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/cgi-jstatus-Z":
				json.NewEncoder(w).Encode(map[string]interface{}{
					"zappi": []map[string]interface{}{
						{"sno": 16000001, "fwv": "3560S3.142"},
						{"sno": 16000002, "fwv": "3560S3.142"},
					},
				})
			default:
				http.Error(w, "not found: "+r.URL.Path, 404)
			}
		}))
		defer server.Close()

		director := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(asnHeader, server.Listener.Addr().String())
			json.NewEncoder(w).Encode(map[string]interface{}{"zappi": []interface{}{}})
		}))
		defer director.Close()

		c := New(director.Client(), director.URL)
		require.NoError(t, c.Validate())
		require.NoError(t, c.Authenticate(context.Background(), testCreds))
		assert.Equal(t, server.URL, c.server())

		devices, err := c.Zappis(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []types.Device{
			{Serial: "16000001", Firmware: "3560S3.142"},
			{Serial: "16000002", Firmware: "3560S3.142"},
		}, devices)
	})

	t.Run("DigestChallenge", func(t *testing.T) {
		var challenged bool
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				challenged = true
				w.Header().Set("WWW-Authenticate", `Digest realm="MyEnergi Telemetry", qop="auth", nonce="2f6c7e1ad3", opaque="a3b8c1"`)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			assert.True(t, strings.HasPrefix(auth, "Digest "), "expected digest authorization")
			assert.Contains(t, auth, `username="10000001"`)
			json.NewEncoder(w).Encode(map[string]interface{}{"zappi": []interface{}{}})
		}))
		defer ts.Close()

		c := New(ts.Client(), ts.URL)
		require.NoError(t, c.Authenticate(context.Background(), testCreds))
		assert.True(t, challenged, "server should have issued a challenge")
	})

	t.Run("Unauthorized", func(t *testing.T) {
		// every answer is a fresh challenge, as if the api key were wrong
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("WWW-Authenticate", `Digest realm="MyEnergi Telemetry", qop="auth", nonce="9b1e", opaque="a3b8c1"`)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer ts.Close()

		c := New(ts.Client(), ts.URL)
		err := c.Authenticate(context.Background(), testCreds)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("MissingCredentials", func(t *testing.T) {
		c := New(http.DefaultClient, "http://127.0.0.1:1")
		assert.ErrorContains(t, c.Authenticate(context.Background(), types.Credentials{Password: "x"}), "username")
		assert.ErrorContains(t, c.Authenticate(context.Background(), types.Credentials{Username: "x"}), "password")
	})

	t.Run("Validate", func(t *testing.T) {
		assert.Error(t, (&Client{}).Validate())
		assert.Error(t, (&Client{directorURL: "not a url"}).Validate())
		assert.NoError(t, (&Client{directorURL: defaultDirectorURL}).Validate())
	})
}

func TestSamples(t *testing.T) {
	day := types.Date{Year: 2024, Month: 6, Day: 3}

	var paths []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/cgi-jdayhour-Z16000001-2024-6-3":
			// out of order on purpose
			w.Write([]byte(`{"U16000001":[
				{"hr":1,"dow":"Mon","yr":2024,"mon":6,"dom":3,"imp":7200},
				{"dow":"Mon","yr":2024,"mon":6,"dom":3,"imp":3600}
			]}`))
		case "/cgi-jday-Z16000001-2024-6-3":
			w.Write([]byte(`{"U16000001":[
				{"min":1,"imp":40,"v1":2400},
				{"hr":0,"min":2,"imp":41,"v1":2401}
			]}`))
		case "/cgi-jdayhour-Z16000002-2024-6-3":
			w.Write([]byte(`{}`))
		default:
			http.Error(w, "not found: "+r.URL.Path, 404)
		}
	}))
	defer ts.Close()

	c := New(ts.Client(), ts.URL)
	ctx := context.Background()

	t.Run("Hourly", func(t *testing.T) {
		recs, err := c.Samples(ctx, "16000001", day, types.Hourly)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, 3600.0, recs[0]["imp"])
		assert.Equal(t, 7200.0, recs[1]["imp"])
		assert.Equal(t, "Mon", recs[0]["dow"])
	})

	t.Run("PerMinute", func(t *testing.T) {
		recs, err := c.Samples(ctx, "16000001", day, types.PerMinute)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, 1.0, recs[0]["min"])
		assert.Equal(t, 2400.0, recs[0]["v1"])
	})

	t.Run("NoHistory", func(t *testing.T) {
		recs, err := c.Samples(ctx, "16000002", day, types.Hourly)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := c.Samples(ctx, "16000003", day, types.Hourly)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.Contains(t, paths, "/cgi-jday-Z16000001-2024-6-3")
}
