package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/srg/blecmd/internal/device"
	"github.com/srg/blecmd/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
)

// CharacteristicConfig represents a BLE characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g. "notify,write"
}

// ServiceConfig represents a BLE service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// PeripheralConfig is the complete peripheral profile used by fakes and mocks.
type PeripheralConfig struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	RSSI     int             `json:"rssi"`
	Services []ServiceConfig `json:"services"`
}

// PeripheralBuilder builds a peripheral profile and turns it into either a
// FakePeripheral (for session tests) or a go-ble device mock (for backend
// tests).
type PeripheralBuilder struct {
	config     PeripheralConfig
	hangNotify bool
	subErrs    map[device.Pair]error
}

func NewPeripheralBuilder() *PeripheralBuilder {
	return &PeripheralBuilder{
		config:  PeripheralConfig{RSSI: -50},
		subErrs: make(map[device.Pair]error),
	}
}

func (b *PeripheralBuilder) WithID(id string) *PeripheralBuilder {
	b.config.ID = id
	return b
}

func (b *PeripheralBuilder) WithName(name string) *PeripheralBuilder {
	b.config.Name = name
	return b
}

// WithService adds a service to the profile.
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.config.Services = append(b.config.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service.
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string) *PeripheralBuilder {
	if len(b.config.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	last := &b.config.Services[len(b.config.Services)-1]
	last.Characteristics = append(last.Characteristics, CharacteristicConfig{UUID: uuid, Properties: properties})
	return b
}

// WithHangingNotify makes every subscribe attempt block until its context ends.
func (b *PeripheralBuilder) WithHangingNotify() *PeripheralBuilder {
	b.hangNotify = true
	return b
}

// WithSubscribeError makes subscribing to pair fail with err.
func (b *PeripheralBuilder) WithSubscribeError(pair device.Pair, err error) *PeripheralBuilder {
	b.subErrs[pair] = err
	return b
}

// FromJSON replaces the profile. Panics on invalid JSON.
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	var config PeripheralConfig
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &config); err != nil {
		panic(fmt.Sprintf("PeripheralBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	if config.RSSI == 0 {
		config.RSSI = -50
	}
	b.config = config
	return b
}

// Advertisement is what this peripheral broadcasts during a scan.
func (b *PeripheralBuilder) Advertisement() device.Advertisement {
	adv := device.Advertisement{
		ID:          b.config.ID,
		Name:        b.config.Name,
		RSSI:        b.config.RSSI,
		Connectable: true,
	}
	for _, s := range b.config.Services {
		adv.Services = append(adv.Services, device.NormalizeUUID(s.UUID))
	}
	return adv
}

// Build returns a FakePeripheral for use with FakeAdapter.
func (b *PeripheralBuilder) Build() *FakePeripheral {
	p := &FakePeripheral{
		ID:         b.config.ID,
		Name:       b.config.Name,
		chars:      make(map[device.Pair]charProps),
		hangNotify: b.hangNotify,
		subErrs:    make(map[device.Pair]error, len(b.subErrs)),
	}
	for _, svc := range b.config.Services {
		for _, ch := range svc.Characteristics {
			p.chars[device.NewPair(svc.UUID, ch.UUID)] = parseProps(ch.Properties)
		}
	}
	for k, v := range b.subErrs {
		p.subErrs[k] = v
	}
	return p
}

// BuildProfile converts the profile to go-ble types.
func (b *PeripheralBuilder) BuildProfile() *ble.Profile {
	profile := &ble.Profile{}
	for _, svcConfig := range b.config.Services {
		svc := &ble.Service{UUID: ble.MustParse(svcConfig.UUID)}
		for _, chConfig := range svcConfig.Characteristics {
			svc.Characteristics = append(svc.Characteristics, &ble.Characteristic{
				UUID:     ble.MustParse(chConfig.UUID),
				Property: parseProps(chConfig.Properties).bleProperty(),
			})
		}
		profile.Services = append(profile.Services, svc)
	}
	return profile
}

// BuildBLE creates a mocked ble.Device whose Dial returns client. Scan
// replays scanAds and then returns ctx.Err() once the scan context ends.
func (b *PeripheralBuilder) BuildBLE(client *mocks.MockClient, scanAds ...ble.Advertisement) *mocks.MockDevice {
	dev := &mocks.MockDevice{}
	dev.On("Dial", mock.Anything, mock.Anything).Return(client, nil)
	dev.On("Stop").Return(nil)
	dev.On("Scan", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			handler := args.Get(2).(ble.AdvHandler)
			for _, adv := range scanAds {
				handler(adv)
			}
		}).
		Return(nil)

	client.On("DiscoverProfile", true).Return(b.BuildProfile(), nil)
	return dev
}

type charProps struct {
	read, write, writeNR, notify, indicate bool
}

func parseProps(props string) charProps {
	if props == "" {
		return charProps{read: true, write: true, notify: true}
	}
	var p charProps
	for _, f := range strings.Split(props, ",") {
		switch strings.TrimSpace(strings.ToLower(f)) {
		case "read":
			p.read = true
		case "write":
			p.write = true
		case "write-without-response", "writenr":
			p.writeNR = true
		case "notify":
			p.notify = true
		case "indicate":
			p.indicate = true
		}
	}
	return p
}

func (p charProps) bleProperty() ble.Property {
	var out ble.Property
	if p.read {
		out |= ble.CharRead
	}
	if p.write {
		out |= ble.CharWrite
	}
	if p.writeNR {
		out |= ble.CharWriteNR
	}
	if p.notify {
		out |= ble.CharNotify
	}
	if p.indicate {
		out |= ble.CharIndicate
	}
	return out
}
