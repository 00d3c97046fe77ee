package command

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMapperKnownTokens(t *testing.T) {
	m := NewMapper()
	for _, token := range Tokens {
		a := m.Artifact(token)
		assert.True(t, a.Known, token)
		assert.NotEmpty(t, a.Symbol, token)
		assert.NotEmpty(t, a.Image, token)
	}

	assert.Equal(t, "↑", m.Artifact("siga").Symbol)
	assert.Equal(t, "#C62828", m.Artifact("pare").Color)
}

func TestMapperUnknownTokens(t *testing.T) {
	m := NewMapper()
	for _, token := range []string{"xyz", "", "adelante", "gire", "siga2"} {
		a := m.Artifact(token)
		assert.Equal(t, UnknownArtifact(token), a, token)
		assert.Equal(t, strings.ToUpper(token), a.Label)
		assert.False(t, a.Known)
		assert.Equal(t, "○", a.Symbol)
		assert.Equal(t, "#667882", a.Color)
	}
}

func TestPresentScored(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := NewMapper()
	d := m.Present(Event{Command: Decode("siga:0.87:class_forward"), Origin: OriginLive, ArrivedAt: at})

	assert.Equal(t, "siga", d.Token)
	assert.Equal(t, 87, d.Confidence)
	assert.Equal(t, "87%", d.ConfidenceText)
	assert.False(t, d.Synthesized)
	assert.Equal(t, "class_forward", d.Class)
	assert.Equal(t, OriginLive, d.Origin)
	assert.Equal(t, at, d.At)
}

func TestPresentSynthesizedConfidence(t *testing.T) {
	t.Run("known token uses nominal value", func(t *testing.T) {
		m := NewMapper(WithRand(func() float64 { return 0 }))
		d := m.Present(Event{Command: NewSimple("siga")})
		assert.Equal(t, 97, d.Confidence)
		assert.True(t, d.Synthesized)
	})

	t.Run("unknown token draws from bounded range", func(t *testing.T) {
		for _, r := range []float64{0, 0.25, 0.5, 0.999999} {
			m := NewMapper(WithRand(func() float64 { return r }))
			d := m.Present(Event{Command: NewSimple("xyz")})
			assert.True(t, d.Synthesized)
			assert.GreaterOrEqual(t, d.Confidence, MinSynthesizedConfidence)
			assert.LessOrEqual(t, d.Confidence, MaxSynthesizedConfidence)
		}
	})

	t.Run("out of range sources are clamped", func(t *testing.T) {
		m := NewMapper(WithRand(func() float64 { return 5 }))
		assert.Equal(t, MaxSynthesizedConfidence, m.Present(Event{Command: NewSimple("xyz")}).Confidence)

		m = NewMapper(WithRand(func() float64 { return -5 }))
		assert.Equal(t, MinSynthesizedConfidence, m.Present(Event{Command: NewSimple("xyz")}).Confidence)
	})

	t.Run("default random source stays in range", func(t *testing.T) {
		m := NewMapper()
		for i := 0; i < 200; i++ {
			c := m.Present(Event{Command: NewSimple("unknown")}).Confidence
			assert.GreaterOrEqual(t, c, MinSynthesizedConfidence)
			assert.LessOrEqual(t, c, MaxSynthesizedConfidence)
		}
	})
}

func TestPresentScoredZeroIsNotSynthesized(t *testing.T) {
	d := NewMapper().Present(Event{Command: Decode("xyz:notanumber:foo")})
	assert.Equal(t, 0, d.Confidence)
	assert.False(t, d.Synthesized)
	assert.Equal(t, "XYZ", d.Artifact.Label)
}
