package types

// Channel is one of the power flows reported in a Zappi history sample.
type Channel int

const (
	ChannelImported Channel = iota
	ChannelExported
	ChannelGeneratedNegative
	ChannelGenerated
	ChannelPhase1Diverted
	ChannelPhase2Diverted
	ChannelPhase3Diverted
	ChannelZappiImported
)

// Channels is every channel in report column order.
var Channels = []Channel{
	ChannelImported,
	ChannelExported,
	ChannelGeneratedNegative,
	ChannelGenerated,
	ChannelPhase1Diverted,
	ChannelPhase2Diverted,
	ChannelPhase3Diverted,
	ChannelZappiImported,
}

var channelInfo = map[Channel]struct {
	key  string
	name string
}{
	ChannelImported:          {"imp", "Imported"},
	ChannelExported:          {"exp", "Exported"},
	ChannelGeneratedNegative: {"gen", "Generated Negative"},
	ChannelGenerated:         {"gep", "Generated"},
	ChannelPhase1Diverted:    {"h1d", "Phase 1 diverted"},
	ChannelPhase2Diverted:    {"h2d", "Phase 2 diverted"},
	ChannelPhase3Diverted:    {"h3d", "Phase 3 diverted"},
	ChannelZappiImported:     {"h1b", "Zappi imported"},
}

// Key returns the field name the API uses for the channel.
func (c Channel) Key() string {
	return channelInfo[c].key
}

// Name returns the display name used in table headers and JSON output.
func (c Channel) Name() string {
	if info, ok := channelInfo[c]; ok {
		return info.name
	}
	return "unknown"
}

func (c Channel) String() string {
	return c.Name()
}
