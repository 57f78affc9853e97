package capture

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxEvents bounds a replayed recording. A handwritten signature stays
// well below it.
const MaxEvents = 5000

// ErrTooManyEvents rejects recordings longer than MaxEvents.
var ErrTooManyEvents = errors.New("capture: too many pointer events")

// Point is a position on a drawing surface.
type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Surface is the drawing target of a signature pad.
type Surface interface {
	// Reset erases the surface to its opaque background.
	Reset()
	BeginStroke(p Point)
	ExtendStroke(p Point)
	CommitStroke()
	// Encode serializes the whole surface to a data URL.
	Encode() (string, error)
}

// PadState is the state of a signature pad.
type PadState int

const (
	PadEmpty PadState = iota
	PadDrawing
	PadCaptured
)

func (s PadState) String() string {
	switch s {
	case PadDrawing:
		return "drawing"
	case PadCaptured:
		return "captured"
	default:
		return "empty"
	}
}

// Pad is the freehand signature widget.
type Pad struct {
	surface  Surface
	onChange func(string)

	drawing bool
	inked   bool
	value   string
}

// NewPad returns an empty pad over surface. onChange receives the encoded
// surface after each stroke and "" after a clear. A pad without onChange
// never encodes on its own; read the surface when done.
func NewPad(surface Surface, onChange func(string)) *Pad {
	surface.Reset()
	return &Pad{surface: surface, onChange: onChange}
}

// State returns the current pad state.
func (p *Pad) State() PadState {
	switch {
	case p.drawing:
		return PadDrawing
	case p.inked:
		return PadCaptured
	default:
		return PadEmpty
	}
}

// Value returns the last reported value.
func (p *Pad) Value() string { return p.value }

// HasInk reports whether any stroke has left ink since the last clear.
func (p *Pad) HasInk() bool { return p.inked }

// Down begins a stroke at pt.
func (p *Pad) Down(pt Point) {
	if p.drawing {
		p.surface.CommitStroke()
	}
	p.drawing = true
	p.surface.BeginStroke(pt)
}

// Move extends the current stroke. Moves without a pressed pointer are
// ignored.
func (p *Pad) Move(pt Point) {
	if !p.drawing {
		return
	}
	p.surface.ExtendStroke(pt)
	p.inked = true
}

// Up ends the stroke and, if the surface has ink, reports its encoding.
func (p *Pad) Up() error {
	if !p.drawing {
		return nil
	}
	p.drawing = false
	p.surface.CommitStroke()
	if !p.inked || p.onChange == nil {
		return nil
	}
	encoded, err := p.surface.Encode()
	if err != nil {
		return fmt.Errorf("capture: encode signature: %w", err)
	}
	p.report(encoded)
	return nil
}

// Leave is the pointer leaving the surface; it ends the stroke like Up.
func (p *Pad) Leave() error { return p.Up() }

// Clear erases the surface and reports the empty value.
func (p *Pad) Clear() {
	p.drawing = false
	p.inked = false
	p.surface.Reset()
	p.report("")
}

func (p *Pad) report(v string) {
	p.value = v
	if p.onChange != nil {
		p.onChange(v)
	}
}

// Pointer event types accepted by Replay.
const (
	EventDown  = "down"
	EventMove  = "move"
	EventUp    = "up"
	EventLeave = "leave"
	EventClear = "clear"
)

// PointerEvent is one recorded pointer interaction.
type PointerEvent struct {
	Type string  `json:"type"`
	X    float32 `json:"x"`
	Y    float32 `json:"y"`
}

// ParseEvents decodes a JSON array of pointer events. Empty input is an
// empty recording.
func ParseEvents(data []byte) ([]PointerEvent, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var events []PointerEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("capture: decode pointer events: %w", err)
	}
	if len(events) > MaxEvents {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyEvents, len(events), MaxEvents)
	}
	return events, nil
}

// Replay feeds recorded events to the pad. A recording that ends with the
// pointer still down is closed with an implicit up.
func (p *Pad) Replay(events []PointerEvent) error {
	for i, ev := range events {
		pt := Point{X: ev.X, Y: ev.Y}
		switch ev.Type {
		case EventDown:
			p.Down(pt)
		case EventMove:
			p.Move(pt)
		case EventUp:
			if err := p.Up(); err != nil {
				return err
			}
		case EventLeave:
			if err := p.Leave(); err != nil {
				return err
			}
		case EventClear:
			p.Clear()
		default:
			return fmt.Errorf("capture: event %d: unknown type %q", i, ev.Type)
		}
	}
	return p.Up()
}

// RenderSignature replays events on a fresh raster pad and returns the
// resulting value: a PNG data URL, or "" when nothing was drawn.
func RenderSignature(events []PointerEvent) (string, error) {
	if len(events) > MaxEvents {
		return "", fmt.Errorf("%w: %d > %d", ErrTooManyEvents, len(events), MaxEvents)
	}
	surface := NewRaster(SurfaceWidth, SurfaceHeight)
	pad := NewPad(surface, nil)
	if err := pad.Replay(events); err != nil {
		return "", err
	}
	if !pad.HasInk() {
		return "", nil
	}
	return surface.Encode()
}
