package command

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Command
	}{
		{
			name:  "bare token",
			input: "pare",
			want:  Command{Kind: Simple, Token: "pare"},
		},
		{
			name:  "scored triple",
			input: "siga:0.87:class_forward",
			want:  Command{Kind: Scored, Token: "siga", Confidence: 0.87, Class: "class_forward"},
		},
		{
			name:  "non-numeric confidence fails soft",
			input: "xyz:notanumber:foo",
			want:  Command{Kind: Scored, Token: "xyz", Confidence: 0, Class: "foo"},
		},
		{
			name:  "trimmed and lower-cased",
			input: "  GIRE_DERECHA \r\n",
			want:  Command{Kind: Simple, Token: "gire_derecha"},
		},
		{
			name:  "missing class defaults to empty",
			input: "reversa:0.5",
			want:  Command{Kind: Scored, Token: "reversa", Confidence: 0.5},
		},
		{
			name:  "missing confidence defaults to zero",
			input: "pare:",
			want:  Command{Kind: Scored, Token: "pare"},
		},
		{
			name:  "extra separators ignored",
			input: "siga:0.9:fwd:extra:more",
			want:  Command{Kind: Scored, Token: "siga", Confidence: 0.9, Class: "fwd"},
		},
		{
			name:  "percentage scale",
			input: "siga:87:fwd",
			want:  Command{Kind: Scored, Token: "siga", Confidence: 0.87, Class: "fwd"},
		},
		{
			name:  "negative confidence clamps to zero",
			input: "siga:-0.3:fwd",
			want:  Command{Kind: Scored, Token: "siga", Confidence: 0, Class: "fwd"},
		},
		{
			name:  "empty payload",
			input: "",
			want:  Command{Kind: Simple, Token: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.input)
			assert.Equal(t, tt.want.Kind, got.Kind)
			assert.Equal(t, tt.want.Token, got.Token)
			assert.InDelta(t, tt.want.Confidence, got.Confidence, 1e-9)
			assert.Equal(t, tt.want.Class, got.Class)
		})
	}
}

func TestDecodeSimpleHasNoConfidence(t *testing.T) {
	cmd := Decode("pare")
	assert.False(t, cmd.HasConfidence())
	assert.Empty(t, cmd.Class)

	cmd = Decode("siga:0.87:class_forward")
	assert.True(t, cmd.HasConfidence())
}

func TestDecodePayload(t *testing.T) {
	t.Run("raw bytes", func(t *testing.T) {
		got := DecodePayload([]byte("Siga:0.75:fwd\n"), EncodingRaw)
		assert.Equal(t, "siga", got.Token)
		assert.InDelta(t, 0.75, got.Confidence, 1e-9)
	})

	t.Run("base64 transport", func(t *testing.T) {
		payload := []byte(base64.StdEncoding.EncodeToString([]byte("PARE")))
		got := DecodePayload(payload, EncodingBase64)
		assert.Equal(t, Command{Kind: Simple, Token: "pare"}, got)
	})

	t.Run("invalid base64 falls back to raw text", func(t *testing.T) {
		got := DecodePayload([]byte("reversa"), EncodingBase64)
		assert.Equal(t, "reversa", got.Token)
	})
}

func TestEncodePayloadRoundTrip(t *testing.T) {
	for _, enc := range []Encoding{EncodingRaw, EncodingBase64} {
		got := DecodePayload(EncodePayload("Gire_Izquierda", enc), enc)
		assert.Equal(t, "gire_izquierda", got.Token, "encoding %s", enc)
	}
}

func TestParseEncoding(t *testing.T) {
	enc, err := ParseEncoding("")
	require.NoError(t, err)
	assert.Equal(t, EncodingRaw, enc)

	enc, err = ParseEncoding("BASE64")
	require.NoError(t, err)
	assert.Equal(t, EncodingBase64, enc)

	_, err = ParseEncoding("hex")
	assert.Error(t, err)
}
