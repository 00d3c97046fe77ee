package session

import (
	"time"

	"github.com/srg/blecmd/internal/command"
	"github.com/srg/blecmd/internal/device"
)

const (
	DefaultScanTimeout      = 10 * time.Second
	DefaultConnectTimeout   = 30 * time.Second
	DefaultNegotiateTimeout = 5 * time.Second
	DefaultSimulatePeriod   = 3 * time.Second
	DefaultDemoPeriod       = 2200 * time.Millisecond
	DefaultEventBuffer      = 64
)

// Options configures a Manager. Zero fields fall back to defaults.
type Options struct {
	ScanTimeout      time.Duration
	ConnectTimeout   time.Duration
	NegotiateTimeout time.Duration // bound for each notify pair attempt
	SimulatePeriod   time.Duration // fallback generator period for live sessions
	DemoPeriod       time.Duration // generator period in demo mode

	NotifyPairs []device.Pair // negotiation order, first match wins
	WritePairs  []device.Pair

	Encoding  command.Encoding
	NamedOnly bool // list only peripherals advertising a name

	EventBuffer int
	Mapper      *command.Mapper
	Tokens      []string // simulated rotation

	Now       func() time.Time
	NewTicker func(time.Duration) Ticker
}

// DefaultOptions returns the options the CLI starts from.
func DefaultOptions() Options {
	return Options{
		ScanTimeout:      DefaultScanTimeout,
		ConnectTimeout:   DefaultConnectTimeout,
		NegotiateTimeout: DefaultNegotiateTimeout,
		SimulatePeriod:   DefaultSimulatePeriod,
		DemoPeriod:       DefaultDemoPeriod,
		NotifyPairs:      device.DefaultNotifyPairs(),
		WritePairs:       device.DefaultWritePairs(),
		Encoding:         command.EncodingRaw,
		NamedOnly:        true,
		EventBuffer:      DefaultEventBuffer,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ScanTimeout <= 0 {
		o.ScanTimeout = d.ScanTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = d.ConnectTimeout
	}
	if o.NegotiateTimeout <= 0 {
		o.NegotiateTimeout = d.NegotiateTimeout
	}
	if o.SimulatePeriod <= 0 {
		o.SimulatePeriod = d.SimulatePeriod
	}
	if o.DemoPeriod <= 0 {
		o.DemoPeriod = d.DemoPeriod
	}
	if o.NotifyPairs == nil {
		o.NotifyPairs = d.NotifyPairs
	}
	if o.WritePairs == nil {
		o.WritePairs = d.WritePairs
	}
	if o.Encoding == "" {
		o.Encoding = d.Encoding
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = d.EventBuffer
	}
	if o.Mapper == nil {
		o.Mapper = command.NewMapper()
	}
	if len(o.Tokens) == 0 {
		o.Tokens = command.Tokens
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewTicker == nil {
		o.NewTicker = NewTicker
	}
	return o
}
