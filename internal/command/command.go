// Package command turns peripheral payloads into typed commands and maps them
// to display artifacts.
//
// The peripheral firmware sends either a bare token ("pare") or a scored
// triple ("siga:0.87:class_forward"). The shape is decided once by Decode and
// carried as a Kind; nothing downstream re-parses the text.
package command

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind discriminates the two payload shapes.
type Kind int

const (
	// Simple carries a token only.
	Simple Kind = iota
	// Scored carries a token, a confidence and the model's original class.
	Scored
)

func (k Kind) String() string {
	if k == Scored {
		return "scored"
	}
	return "simple"
}

const fieldSeparator = ":"

// Command is a decoded payload.
type Command struct {
	Kind       Kind
	Token      string
	Confidence float64 // fraction in [0,1], only meaningful for Scored
	Class      string  // only meaningful for Scored
}

// NewSimple builds a token-only command.
func NewSimple(token string) Command {
	return Command{Kind: Simple, Token: normalize(token)}
}

// NewScored builds a scored command.
func NewScored(token string, confidence float64, class string) Command {
	return Command{
		Kind:       Scored,
		Token:      normalize(token),
		Confidence: clampFraction(confidence),
		Class:      class,
	}
}

// HasConfidence reports whether the peripheral supplied a confidence value.
func (c Command) HasConfidence() bool {
	return c.Kind == Scored
}

// Origin tells where an event came from.
type Origin string

const (
	OriginLive      Origin = "live"
	OriginSimulated Origin = "simulated"
	OriginDemo      Origin = "demo"
)

// Event is a command stamped with its arrival.
type Event struct {
	Command
	Origin    Origin
	ArrivedAt time.Time
}

// Encoding is the transport encoding of a notification payload.
type Encoding string

const (
	EncodingRaw    Encoding = "raw"
	EncodingBase64 Encoding = "base64"
)

// ParseEncoding validates an encoding name. Empty means raw.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(s))) {
	case "", EncodingRaw:
		return EncodingRaw, nil
	case EncodingBase64:
		return EncodingBase64, nil
	default:
		return "", fmt.Errorf("invalid payload encoding %q: use raw or base64", s)
	}
}

// Decode parses a text payload. It never fails: malformed confidence values
// become 0 and unknown tokens pass through untouched.
func Decode(text string) Command {
	text = normalize(text)
	if !strings.Contains(text, fieldSeparator) {
		return Command{Kind: Simple, Token: text}
	}

	fields := strings.SplitN(text, fieldSeparator, 4)
	cmd := Command{Kind: Scored, Token: strings.TrimSpace(fields[0])}
	if len(fields) > 1 {
		cmd.Confidence = parseConfidence(fields[1])
	}
	if len(fields) > 2 {
		cmd.Class = strings.TrimSpace(fields[2])
	}
	return cmd
}

// DecodePayload decodes transport bytes and then the text payload.
// Base64 payloads that fail to decode are treated as raw text.
func DecodePayload(data []byte, enc Encoding) Command {
	if enc == EncodingBase64 {
		trimmed := strings.TrimSpace(string(data))
		if decoded, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
			return Decode(string(decoded))
		}
	}
	return Decode(string(data))
}

// EncodePayload is the inverse transport step used for manual writes.
func EncodePayload(token string, enc Encoding) []byte {
	text := normalize(token) + "\n"
	if enc == EncodingBase64 {
		return []byte(base64.StdEncoding.EncodeToString([]byte(text)))
	}
	return []byte(text)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// parseConfidence accepts fractions and 0-100 percentages.
func parseConfidence(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	if v > 1 {
		v /= 100
	}
	return clampFraction(v)
}

func clampFraction(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
