package panconfig

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drgolem/resonantmix/pkg/geom"
	"github.com/drgolem/resonantmix/pkg/panner"
)

const sampleYAML = `
mode: rectangles
max_radius: 1000
speakers:
  - x: 0
    y: 0
rectangles:
  - location: {x: 0, y: 0}
    size: {x: 1000, y: 1000}
    stereo_pan: 0.3
    fade_width: 100
    left_channel: 0
    right_channel: 1
`

func TestDecodeParsesDocument(t *testing.T) {
	doc, err := Decode(strings.NewReader(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "rectangles", doc.Mode)
	assert.Equal(t, 1000.0, doc.MaxRadius)
	require.Len(t, doc.Speakers, 1)
	require.Len(t, doc.Rectangles, 1)
	assert.Equal(t, 0.3, doc.Rectangles[0].StereoPan)
	assert.Equal(t, 1, doc.Rectangles[0].RightChannel)
}

func TestApplyToConfiguresPanner(t *testing.T) {
	doc, err := Decode(strings.NewReader(sampleYAML))
	require.NoError(t, err)

	p := panner.New(0)
	require.NoError(t, doc.ApplyTo(p))
	assert.Equal(t, 2, p.ChannelCount())
}

func TestNewDocumentRoundTrip(t *testing.T) {
	doc := NewDocument(panner.ModeRadial, 500, []geom.Point{geom.NewPoint(1, 2)}, nil)
	assert.Equal(t, "radial", doc.Mode)
	require.Len(t, doc.Speakers, 1)
	assert.Equal(t, 1.0, doc.Speakers[0].X)
	assert.Equal(t, 2.0, doc.Speakers[0].Y)
}

func TestApplyToUnknownModeErrors(t *testing.T) {
	doc := &Document{Mode: "bogus"}
	p := panner.New(0)
	err := doc.ApplyTo(p)
	assert.Error(t, err)
}
