// Package canvas implements pointer-driven note repositioning on a bounded
// board canvas.
package canvas

import (
	"context"
	"math/rand"
	"sync"

	"github.com/atinyakov/casebook/internal/models"
)

// Size is the visible size of the board canvas, in pixels.
type Size struct {
	Width  float64
	Height float64
}

// MaxX is the largest x a note may take on this canvas.
func (s Size) MaxX() float64 { return s.Width - models.NoteWidth }

// MaxY is the largest y a note may take on this canvas.
func (s Size) MaxY() float64 { return s.Height - models.NoteHeight }

// Clamp limits v to [lo, hi]. When hi < lo the result is lo, so a canvas
// narrower than a note pins the note at the origin.
func Clamp(v, lo, hi float64) float64 {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

// ClampPosition limits a note's top-left corner to the canvas.
func (s Size) ClampPosition(x, y float64) (float64, float64) {
	return Clamp(x, 0, s.MaxX()), Clamp(y, 0, s.MaxY())
}

// RandomPlacement picks an integral position uniformly within the canvas and a
// rotation uniformly from [models.MinRotation, models.MaxRotation].
func (s Size) RandomPlacement(rnd *rand.Rand) (x, y float64, rotation int) {
	x = randomCoord(rnd, s.MaxX())
	y = randomCoord(rnd, s.MaxY())
	rotation = rnd.Intn(models.MaxRotation-models.MinRotation+1) + models.MinRotation
	return x, y, rotation
}

func randomCoord(rnd *rand.Rand, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return float64(int(rnd.Float64() * max))
}

// CommitFunc persists the final position of a dragged note.
type CommitFunc func(ctx context.Context, noteID string, x, y float64) error

type dragState int

const (
	idle dragState = iota
	dragging
)

// DragController tracks at most one note being dragged.
//
// Idle → Dragging on PointerDown, Dragging → Idle on PointerUp. Positions
// computed while dragging are local only; PointerUp hands the final position
// to the commit function exactly once.
type DragController struct {
	mu     sync.Mutex
	size   Size
	commit CommitFunc

	state   dragState
	noteID  string
	offsetX float64
	offsetY float64
	x, y    float64
}

// NewDragController returns an idle controller for a canvas of the given size.
func NewDragController(size Size, commit CommitFunc) *DragController {
	return &DragController{size: size, commit: commit}
}

// Resize updates the canvas bounds used for subsequent moves.
func (d *DragController) Resize(size Size) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.size = size
}

// PointerDown starts dragging the note whose top-left corner is at
// (noteX, noteY) with the pointer at (pointerX, pointerY), both in canvas
// coordinates. It returns false and changes nothing if a drag is already in
// progress.
func (d *DragController) PointerDown(noteID string, noteX, noteY, pointerX, pointerY float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == dragging {
		return false
	}
	d.state = dragging
	d.noteID = noteID
	d.offsetX = pointerX - noteX
	d.offsetY = pointerY - noteY
	d.x, d.y = noteX, noteY
	return true
}

// PointerMove moves the tracked note so it stays under the pointer at the
// offset recorded by PointerDown, clamped to the canvas. ok is false when no
// drag is in progress.
func (d *DragController) PointerMove(pointerX, pointerY float64) (x, y float64, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != dragging {
		return 0, 0, false
	}
	d.x, d.y = d.size.ClampPosition(pointerX-d.offsetX, pointerY-d.offsetY)
	return d.x, d.y, true
}

// PointerUp ends the drag and commits the last rendered position. It is a
// no-op when no drag is in progress.
func (d *DragController) PointerUp(ctx context.Context) error {
	d.mu.Lock()
	if d.state != dragging {
		d.mu.Unlock()
		return nil
	}
	noteID, x, y := d.noteID, d.x, d.y
	d.state = idle
	d.noteID = ""
	d.mu.Unlock()

	if d.commit == nil {
		return nil
	}
	return d.commit(ctx, noteID, x, y)
}

// Dragging returns the id of the note being dragged, if any.
func (d *DragController) Dragging() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.noteID, d.state == dragging
}

// Position returns the current rendered position of the dragged note.
func (d *DragController) Position() (float64, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.x, d.y
}
