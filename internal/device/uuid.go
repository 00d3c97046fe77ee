package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	sigBasePrefix = "0000"
	sigBaseSuffix = "00001000800000805f9b34fb"
)

// Well-known UART-style services exposed by hobby BLE modules.
const (
	NordicUARTService = "6e400001b5a3f393e0a9e50e24dcca9e"
	NordicUARTRX      = "6e400003b5a3f393e0a9e50e24dcca9e" // peripheral -> central (notify)
	NordicUARTTX      = "6e400002b5a3f393e0a9e50e24dcca9e" // central -> peripheral (write)
	HM10Service       = "ffe0"
	HM10Char          = "ffe1" // notify and write on the same characteristic
)

var knownServices = map[string]string{
	NordicUARTService: "Nordic UART Service",
	HM10Service:       "HM-10 Serial",
	"1800":            "Generic Access",
	"1801":            "Generic Attribute",
	"180a":            "Device Information",
	"180f":            "Battery Service",
}

// NormalizeUUID converts a UUID string to the internal format (lowercase, no dashes).
// A 0x prefix and braces are stripped. Full 128-bit UUIDs in Bluetooth SIG base
// format (0000xxxx-0000-1000-8000-00805f9b34fb) are reduced to their 16-bit form.
func NormalizeUUID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	s = strings.Trim(s, "{}")
	s = strings.ReplaceAll(s, "-", "")

	if len(s) == 32 && strings.HasPrefix(s, sigBasePrefix) && strings.HasSuffix(s, sigBaseSuffix) {
		return s[4:8]
	}
	return s
}

// ExpandUUID returns the canonical dashed 128-bit form of a UUID.
// 16-bit and 32-bit forms are placed into the Bluetooth SIG base UUID.
func ExpandUUID(s string) (string, error) {
	n := NormalizeUUID(s)
	switch len(n) {
	case 4:
		n = sigBasePrefix + n + sigBaseSuffix
	case 8:
		n = n + sigBaseSuffix
	case 32:
	default:
		return "", fmt.Errorf("invalid UUID %q", s)
	}
	u, err := uuid.Parse(n)
	if err != nil {
		return "", fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return u.String(), nil
}

// ValidateUUID validates that UUID strings are non-empty and well-formed.
// Returns normalized UUID strings or an error.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, u := range uuids {
		if strings.TrimSpace(u) == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		if _, err := ExpandUUID(u); err != nil {
			return nil, fmt.Errorf("invalid UUID format at index %d: %w", i, err)
		}
		result = append(result, NormalizeUUID(u))
	}
	return result, nil
}

// LookupService returns a human-readable name for well-known services.
func LookupService(u string) string {
	return knownServices[NormalizeUUID(u)]
}

// Pair addresses one characteristic inside one service.
type Pair struct {
	Service        string
	Characteristic string
}

// NewPair builds a pair from raw UUID strings, normalizing both.
func NewPair(service, characteristic string) Pair {
	return Pair{
		Service:        NormalizeUUID(service),
		Characteristic: NormalizeUUID(characteristic),
	}
}

// ParsePair parses "service/characteristic".
func ParsePair(s string) (Pair, error) {
	svc, char, ok := strings.Cut(s, "/")
	if !ok {
		return Pair{}, fmt.Errorf("invalid pair %q: expected service/characteristic", s)
	}
	if _, err := ValidateUUID(svc, char); err != nil {
		return Pair{}, fmt.Errorf("invalid pair %q: %w", s, err)
	}
	return NewPair(svc, char), nil
}

func (p Pair) String() string {
	return p.Service + "/" + p.Characteristic
}

// DefaultNotifyPairs is the negotiation order for the command stream: every
// combination of the two known services and their notify characteristics.
func DefaultNotifyPairs() []Pair {
	return []Pair{
		NewPair(NordicUARTService, NordicUARTRX),
		NewPair(NordicUARTService, HM10Char),
		NewPair(HM10Service, NordicUARTRX),
		NewPair(HM10Service, HM10Char),
	}
}

// DefaultWritePairs lists characteristics that accept manual commands.
func DefaultWritePairs() []Pair {
	return []Pair{
		NewPair(NordicUARTService, NordicUARTTX),
		NewPair(HM10Service, HM10Char),
	}
}
