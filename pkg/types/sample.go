package types

import "fmt"

// Granularity is the slot size of a history query. It is fixed for an entire
// query and decides how raw channel values convert to watts.
type Granularity int

const (
	Hourly Granularity = iota
	PerMinute
)

// SlotSeconds returns the length of one sample slot in seconds.
func (g Granularity) SlotSeconds() int {
	if g == PerMinute {
		return 60
	}
	return 60 * 60
}

func (g Granularity) String() string {
	switch g {
	case Hourly:
		return "hour"
	case PerMinute:
		return "minute"
	default:
		return fmt.Sprintf("granularity(%d)", int(g))
	}
}

// RawRecord is one history sample exactly as decoded from the API. Numbers
// decode as float64; some calendar fields (dow) are strings.
type RawRecord map[string]any

// Device is a Zappi attached to the account.
type Device struct {
	Serial   string `json:"serial"`
	Firmware string `json:"firmware,omitempty"`
}

// Credentials authenticate against the myenergi API. Username is the hub
// serial number and Password is the API key.
type Credentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}
