package command

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Synthesized confidence bounds, in percent.
const (
	MinSynthesizedConfidence = 40
	MaxSynthesizedConfidence = 99
)

// Artifact is what the renderer draws for a token.
type Artifact struct {
	Symbol     string `json:"symbol"`
	Label      string `json:"label"`
	Color      string `json:"color"`
	Background string `json:"background"`
	Image      string `json:"image,omitempty"`
	Known      bool   `json:"known"`
}

// Display is the derived view of the latest event. It is recomputed for every
// event and never stored beyond the session.
type Display struct {
	Token          string   `json:"token"`
	Artifact       Artifact `json:"artifact"`
	Confidence     int      `json:"confidence"`
	ConfidenceText string   `json:"confidence_text"`
	// Synthesized marks a cosmetic confidence made up for presentation.
	// It is not a measurement and must not be used as one.
	Synthesized bool      `json:"synthesized"`
	Class       string    `json:"class,omitempty"`
	Origin      Origin    `json:"origin"`
	At          time.Time `json:"at"`
}

type entry struct {
	artifact Artifact
	nominal  int // confidence shown when the peripheral sends none
}

var defaultTable = map[string]entry{
	"siga": {
		artifact: Artifact{Symbol: "↑", Label: "Siga", Color: "#157F28", Background: "#E6F4EA", Image: "siga.png", Known: true},
		nominal:  97,
	},
	"pare": {
		artifact: Artifact{Symbol: "✖", Label: "Pare", Color: "#C62828", Background: "#FBEAEA", Image: "pare.png", Known: true},
		nominal:  76,
	},
	"gire_derecha": {
		artifact: Artifact{Symbol: "→", Label: "Gire derecha", Color: "#0B6CFF", Background: "#EAF3FF", Image: "gire_derecha.png", Known: true},
		nominal:  82,
	},
	"gire_izquierda": {
		artifact: Artifact{Symbol: "←", Label: "Gire izquierda", Color: "#FF8A00", Background: "#FFF4E6", Image: "gire_izquierda.png", Known: true},
		nominal:  80,
	},
	"reversa": {
		artifact: Artifact{Symbol: "↓", Label: "Reversa", Color: "#6A4BCF", Background: "#F0ECFB", Image: "reversa.png", Known: true},
		nominal:  76,
	},
}

// Tokens is the fixed rotation used by the simulated generator, in order.
var Tokens = []string{"siga", "pare", "gire_derecha", "gire_izquierda", "reversa"}

// UnknownArtifact is the deterministic fallback for tokens missing from the table.
func UnknownArtifact(token string) Artifact {
	return Artifact{
		Symbol:     "○",
		Label:      strings.ToUpper(token),
		Color:      "#667882",
		Background: "#F3F6F8",
	}
}

// Mapper is a pure lookup from tokens to display artifacts.
type Mapper struct {
	table map[string]entry
	rand  func() float64
}

// MapperOption customizes a Mapper.
type MapperOption func(*Mapper)

// WithRand replaces the random source used for synthesized confidence.
// fn must return values in [0,1).
func WithRand(fn func() float64) MapperOption {
	return func(m *Mapper) {
		m.rand = fn
	}
}

// NewMapper creates a Mapper over the built-in table.
func NewMapper(opts ...MapperOption) *Mapper {
	m := &Mapper{
		table: defaultTable,
		rand:  rand.Float64,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Artifact returns the table artifact for token or the unknown artifact.
func (m *Mapper) Artifact(token string) Artifact {
	if e, ok := m.table[token]; ok {
		return e.artifact
	}
	return UnknownArtifact(token)
}

// Present derives the Display for an event.
func (m *Mapper) Present(ev Event) Display {
	d := Display{
		Token:    ev.Token,
		Artifact: m.Artifact(ev.Token),
		Class:    ev.Class,
		Origin:   ev.Origin,
		At:       ev.ArrivedAt,
	}

	if ev.HasConfidence() {
		d.Confidence = int(math.Round(ev.Confidence * 100))
	} else {
		d.Confidence = m.synthesize(ev.Token)
		d.Synthesized = true
	}
	d.ConfidenceText = fmt.Sprintf("%d%%", d.Confidence)
	return d
}

func (m *Mapper) synthesize(token string) int {
	if e, ok := m.table[token]; ok && e.nominal > 0 {
		return e.nominal
	}
	c := int(math.Floor(60 + m.rand()*30))
	return min(MaxSynthesizedConfidence, max(MinSynthesizedConfidence, c))
}
