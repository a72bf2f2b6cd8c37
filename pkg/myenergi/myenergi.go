package myenergi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/icholy/digest"
	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/zappihistory/pkg/common"
	"github.com/raterudder/zappihistory/pkg/log"
	"github.com/raterudder/zappihistory/pkg/types"
)

const (
	defaultDirectorURL = "https://director.myenergi.net"

	// asnHeader names the server that holds the account's data.
	asnHeader = "X_MYENERGI-asn"
)

var (
	// ErrUnauthorized is returned when the API answers 401.
	ErrUnauthorized = errors.New("myenergi rejected the credentials")
	// ErrNotFound is returned when the API answers 404.
	ErrNotFound = errors.New("myenergi resource not found")
)

// Client reads Zappi state and history from the myenergi cloud API.
type Client struct {
	client      *http.Client
	base        http.RoundTripper
	directorURL string

	mu        sync.Mutex
	serverURL string
}

// Configured registers the myenergi flags and returns a Client that is
// ready once lflag has been configured.
func Configured() *Client {
	apiURL := lflag.String("myenergi-url", defaultDirectorURL, "URL of the myenergi director used to locate the account's server")
	timeout := lflag.Duration("myenergi-timeout", time.Minute, "Timeout for a single myenergi API request")

	c := &Client{}
	lflag.Do(func() {
		c.directorURL = *apiURL
		c.client = common.HTTPClient(*timeout)
		c.base = c.client.Transport
	})
	return c
}

// New returns a Client that talks to directorURL using client.
func New(client *http.Client, directorURL string) *Client {
	return &Client{
		client:      client,
		base:        client.Transport,
		directorURL: directorURL,
	}
}

// Validate ensures the configuration is valid.
func (c *Client) Validate() error {
	if c.directorURL == "" {
		return errors.New("myenergi-url is required")
	}
	u, err := url.Parse(c.directorURL)
	if err != nil {
		return fmt.Errorf("failed to parse myenergi url (%s): %w", c.directorURL, err)
	}
	if u.Host == "" {
		return fmt.Errorf("myenergi url (%s) is missing a host", c.directorURL)
	}
	return nil
}

// Authenticate installs the digest credentials and asks the director which
// server holds the account. Subsequent requests go to that server.
func (c *Client) Authenticate(ctx context.Context, creds types.Credentials) error {
	if creds.Username == "" {
		return errors.New("missing myenergi username")
	}
	if creds.Password == "" {
		return errors.New("missing myenergi password")
	}

	base := c.base
	if base == nil {
		base = http.DefaultTransport
	}
	c.client.Transport = &digest.Transport{
		Username:  creds.Username,
		Password:  creds.Password,
		Transport: base,
	}

	c.mu.Lock()
	c.serverURL = c.directorURL
	c.mu.Unlock()

	log.Ctx(ctx).DebugContext(ctx, "locating myenergi server", slog.String("director", c.directorURL))
	var res statusResult
	if err := c.get(ctx, "cgi-jstatus-Z", &res); err != nil {
		return fmt.Errorf("myenergi login failed: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "myenergi login success", slog.String("server", c.server()))
	return nil
}

func (c *Client) server() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.serverURL == "" {
		return c.directorURL
	}
	return c.serverURL
}

// updateServer switches to the server named by the asn header, keeping the
// director's scheme.
func (c *Client) updateServer(ctx context.Context, asn string) {
	if asn == "" {
		return
	}
	u, err := url.Parse(c.directorURL)
	if err != nil {
		return
	}
	u.Host = asn
	u.Path = ""
	next := u.String()

	c.mu.Lock()
	defer c.mu.Unlock()
	if next != c.serverURL {
		log.Ctx(ctx).DebugContext(ctx, "switching myenergi server", slog.String("from", c.serverURL), slog.String("to", next))
		c.serverURL = next
	}
}

func (c *Client) newGetRequest(ctx context.Context, endpoint string) (*http.Request, error) {
	u, err := url.Parse(c.server())
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}
	return http.NewRequestWithContext(ctx, "GET", u.String(), nil)
}

func (c *Client) get(ctx context.Context, endpoint string, dest interface{}) error {
	req, err := c.newGetRequest(ctx, endpoint)
	if err != nil {
		return err
	}
	return c.doRequest(req, dest)
}

func (c *Client) doRequest(req *http.Request, dest interface{}) error {
	ctx := req.Context()

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.updateServer(ctx, resp.Header.Get(asnHeader))

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path)
	default:
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if err := json.NewDecoder(bytes.NewReader(body)).Decode(dest); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode myenergi response", slog.Any("error", err), slog.String("body", string(body)))
		return fmt.Errorf("failed to decode myenergi response: %w", err)
	}
	return nil
}

// Zappis lists the Zappis on the account.
func (c *Client) Zappis(ctx context.Context) ([]types.Device, error) {
	var res statusResult
	if err := c.get(ctx, "cgi-jstatus-Z", &res); err != nil {
		return nil, fmt.Errorf("cgi-jstatus-Z failed: %w", err)
	}

	devices := make([]types.Device, 0, len(res.Zappi))
	for _, z := range res.Zappi {
		devices = append(devices, types.Device{
			Serial:   strconv.FormatInt(z.Serial, 10),
			Firmware: z.Firmware,
		})
	}
	log.Ctx(ctx).DebugContext(ctx, "myenergi zappi list", slog.Int("count", len(devices)))
	return devices, nil
}

// Samples returns the hourly or per-minute history of a Zappi for one day
// sorted by time of day.
func (c *Client) Samples(ctx context.Context, serial string, day types.Date, g types.Granularity) ([]types.RawRecord, error) {
	endpoint := "cgi-jdayhour-Z"
	if g == types.PerMinute {
		endpoint = "cgi-jday-Z"
	}
	endpoint = fmt.Sprintf("%s%s-%d-%d-%d", endpoint, serial, day.Year, day.Month, day.Day)

	log.Ctx(ctx).DebugContext(
		ctx,
		"getting zappi history",
		slog.String("serial", serial),
		slog.String("day", day.String()),
		slog.String("granularity", g.String()),
	)

	var res map[string][]types.RawRecord
	if err := c.get(ctx, endpoint, &res); err != nil {
		return nil, fmt.Errorf("%s failed: %w", endpoint, err)
	}

	recs, ok := res["U"+serial]
	if !ok {
		log.Ctx(ctx).DebugContext(ctx, "no history for zappi", slog.String("serial", serial), slog.String("day", day.String()))
		return nil, nil
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return slotOf(recs[i]) < slotOf(recs[j])
	})
	return recs, nil
}

func slotOf(rec types.RawRecord) float64 {
	hour, _ := rec["hr"].(float64)
	minute, _ := rec["min"].(float64)
	return hour*60 + minute
}

type statusResult struct {
	Zappi []zappiStatus `json:"zappi"`
}

type zappiStatus struct {
	Serial   int64  `json:"sno"`
	Firmware string `json:"fwv"`
}
