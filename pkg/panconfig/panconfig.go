// Package panconfig loads and saves a Panner's routing configuration
// (mode, loudspeakers, rectangles, max radius) as a YAML document, the
// persisted form spec.md's external-interfaces section calls for.
package panconfig

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/drgolem/resonantmix/pkg/geom"
	"github.com/drgolem/resonantmix/pkg/panner"
)

// Point is the YAML wire shape for a geom.Point; geom.Point itself has no
// tags of its own since it is a type alias over github.com/golang/geo/r2.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

func (p Point) toGeom() geom.Point {
	return geom.NewPoint(p.X, p.Y)
}

func fromGeom(p geom.Point) Point {
	return Point{X: p.X, Y: p.Y}
}

// Rectangle is the YAML wire shape of a panner.SoundRectangle.
type Rectangle struct {
	Location     Point   `yaml:"location"`
	Size         Point   `yaml:"size"`
	StereoPan    float64 `yaml:"stereo_pan"`
	FadeWidth    float64 `yaml:"fade_width"`
	LeftChannel  int     `yaml:"left_channel"`
	RightChannel int     `yaml:"right_channel"`
}

// Document is the on-disk Panner configuration: mode, loudspeakers,
// rectangles and max radius. Exact file layout is not prescribed beyond
// this struct's YAML tags.
type Document struct {
	Mode       string      `yaml:"mode"` // "radial" or "rectangles"
	MaxRadius  float64     `yaml:"max_radius"`
	Speakers   []Point     `yaml:"speakers,omitempty"`
	Rectangles []Rectangle `yaml:"rectangles,omitempty"`
}

// Load reads a Document from a YAML file.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("panconfig: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a Document from an io.Reader.
func Decode(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("panconfig: read: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("panconfig: parse: %w", err)
	}
	return &doc, nil
}

// Save writes the Document to a YAML file.
func (d *Document) Save(path string) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("panconfig: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("panconfig: write %s: %w", path, err)
	}
	return nil
}

// NewDocument builds a persistable Document from an explicit mode, max
// radius, loudspeaker list and rectangle list. It does not read a live
// Panner: a Panner has no accessor for its rectangles/speakers, so callers
// that need round-trip persistence should keep the Document they loaded or
// built and call ApplyTo.
func NewDocument(mode panner.Mode, maxRadius float64, speakers []geom.Point, rectangles []panner.SoundRectangle) *Document {
	d := &Document{MaxRadius: maxRadius}
	switch mode {
	case panner.ModeRectangles:
		d.Mode = "rectangles"
	default:
		d.Mode = "radial"
	}
	for _, s := range speakers {
		d.Speakers = append(d.Speakers, fromGeom(s))
	}
	for _, r := range rectangles {
		d.Rectangles = append(d.Rectangles, Rectangle{
			Location:     fromGeom(r.Location),
			Size:         fromGeom(r.Size),
			StereoPan:    r.StereoPan,
			FadeWidth:    r.FadeWidth,
			LeftChannel:  r.LeftChannel,
			RightChannel: r.RightChannel,
		})
	}
	return d
}

// ApplyTo reconfigures a live Panner to match the Document: sets the mode
// and max radius, replaces the loudspeaker list and appends every
// rectangle. Control-thread only.
func (d *Document) ApplyTo(p *panner.Panner) error {
	switch d.Mode {
	case "radial", "":
		p.SetMode(panner.ModeRadial)
	case "rectangles":
		p.SetMode(panner.ModeRectangles)
	default:
		return fmt.Errorf("panconfig: unknown mode %q", d.Mode)
	}

	p.SetMaxRadius(d.MaxRadius)

	speakers := make([]panner.Loudspeaker, len(d.Speakers))
	for i, s := range d.Speakers {
		speakers[i] = panner.Loudspeaker{Location: s.toGeom()}
	}
	p.ReplaceSpeakers(speakers)

	for _, r := range d.Rectangles {
		p.AddRectangle(panner.SoundRectangle{
			Location:     r.Location.toGeom(),
			Size:         r.Size.toGeom(),
			StereoPan:    r.StereoPan,
			FadeWidth:    r.FadeWidth,
			LeftChannel:  r.LeftChannel,
			RightChannel: r.RightChannel,
		})
	}
	return nil
}
