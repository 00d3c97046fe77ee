package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/srg/blecmd/internal/device"
	"github.com/srg/blecmd/internal/testutils/mocks"
)

// AdvertisementBuilder builds advertisements for scan tests, either as the
// backend-neutral device.Advertisement or as a go-ble mock.
type AdvertisementBuilder struct {
	name        string
	address     string
	rssi        int
	services    []string
	connectable bool
}

// NewAdvertisementBuilder starts with a connectable advertisement at -50 dBm.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{rssi: -50, connectable: true}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.address = addr
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.rssi = rssi
	return b
}

// WithServices adds service UUIDs in short ("ffe0") or full form.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.services = append(b.services, uuids...)
	return b
}

func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.connectable = c
	return b
}

// FromJSON fills fields present in the JSON document.
// Panics on invalid JSON as this is intended for test data setup.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	var data struct {
		Name        *string  `json:"name"`
		Address     *string  `json:"address"`
		RSSI        *int     `json:"rssi"`
		Services    []string `json:"services"`
		Connectable *bool    `json:"connectable"`
	}
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &data); err != nil {
		panic(fmt.Sprintf("AdvertisementBuilder.FromJSON: %v", err))
	}
	if data.Name != nil {
		b.name = *data.Name
	}
	if data.Address != nil {
		b.address = *data.Address
	}
	if data.RSSI != nil {
		b.rssi = *data.RSSI
	}
	if data.Services != nil {
		b.services = data.Services
	}
	if data.Connectable != nil {
		b.connectable = *data.Connectable
	}
	return b
}

// Build returns the backend-neutral advertisement.
func (b *AdvertisementBuilder) Build() device.Advertisement {
	adv := device.Advertisement{
		ID:          b.address,
		Name:        b.name,
		RSSI:        b.rssi,
		Connectable: b.connectable,
	}
	for _, s := range b.services {
		adv.Services = append(adv.Services, device.NormalizeUUID(s))
	}
	return adv
}

// BuildBLE returns a go-ble advertisement mock with the same fields.
func (b *AdvertisementBuilder) BuildBLE() *mocks.MockAdvertisement {
	addr := &mocks.MockAddr{}
	addr.On("String").Return(b.address)

	var uuids []ble.UUID
	for _, s := range b.services {
		uuids = append(uuids, ble.MustParse(s))
	}

	adv := &mocks.MockAdvertisement{}
	adv.On("Addr").Return(addr)
	adv.On("LocalName").Return(b.name)
	adv.On("RSSI").Return(b.rssi)
	adv.On("Connectable").Return(b.connectable)
	adv.On("Services").Return(uuids)
	return adv
}

// AdvertisementArrayBuilder collects advertisements and hands them to a
// parent builder on Build.
//
//	adapter := testutils.NewFakeAdapter().
//	    WithScanAdvertisements().
//	        WithNewAdvertisement().WithName("Arduino").WithAddress("AA:BB").Build().
//	        Build()
type AdvertisementArrayBuilder[T any] struct {
	advertisements []device.Advertisement
	parent         T
	buildFunc      func(T, []device.Advertisement) T
}

func NewAdvertisementArrayBuilder[T any]() *AdvertisementArrayBuilder[T] {
	return &AdvertisementArrayBuilder[T]{}
}

// WithAdvertisements appends pre-built advertisements.
func (ab *AdvertisementArrayBuilder[T]) WithAdvertisements(ads ...device.Advertisement) *AdvertisementArrayBuilder[T] {
	ab.advertisements = append(ab.advertisements, ads...)
	return ab
}

// WithNewAdvertisement returns a builder whose Build appends to this array.
func (ab *AdvertisementArrayBuilder[T]) WithNewAdvertisement() *AdvertisementArrayBuilderItem[T] {
	return &AdvertisementArrayBuilderItem[T]{
		AdvertisementBuilder: NewAdvertisementBuilder(),
		parent:               ab,
	}
}

// Build returns the parent when one is attached, otherwise the slice itself.
func (ab *AdvertisementArrayBuilder[T]) Build() T {
	if ab.buildFunc != nil {
		return ab.buildFunc(ab.parent, ab.advertisements)
	}
	var result interface{} = ab.advertisements
	return result.(T)
}

// AdvertisementArrayBuilderItem returns to its array builder on Build.
type AdvertisementArrayBuilderItem[T any] struct {
	*AdvertisementBuilder
	parent *AdvertisementArrayBuilder[T]
}

func (abi *AdvertisementArrayBuilderItem[T]) Build() *AdvertisementArrayBuilder[T] {
	abi.parent.advertisements = append(abi.parent.advertisements, abi.AdvertisementBuilder.Build())
	return abi.parent
}

func (abi *AdvertisementArrayBuilderItem[T]) WithName(name string) *AdvertisementArrayBuilderItem[T] {
	abi.AdvertisementBuilder.WithName(name)
	return abi
}

func (abi *AdvertisementArrayBuilderItem[T]) WithAddress(addr string) *AdvertisementArrayBuilderItem[T] {
	abi.AdvertisementBuilder.WithAddress(addr)
	return abi
}

func (abi *AdvertisementArrayBuilderItem[T]) WithRSSI(rssi int) *AdvertisementArrayBuilderItem[T] {
	abi.AdvertisementBuilder.WithRSSI(rssi)
	return abi
}

func (abi *AdvertisementArrayBuilderItem[T]) WithServices(uuids ...string) *AdvertisementArrayBuilderItem[T] {
	abi.AdvertisementBuilder.WithServices(uuids...)
	return abi
}
