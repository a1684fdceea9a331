package effects

import (
	"github.com/BearBump/OrderTrack/internal/pkg/errs"
)

type DialogKind string

const (
	DialogReview    DialogKind = "review"
	DialogCancel    DialogKind = "cancel"
	DialogSafety    DialogKind = "safety"
	DialogEmergency DialogKind = "emergency"
)

var DialogKinds = []DialogKind{DialogReview, DialogCancel, DialogSafety, DialogEmergency}

func ParseDialogKind(s string) (DialogKind, bool) {
	for _, k := range DialogKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

type DialogState struct {
	Kind     DialogKind `json:"kind"`
	Open     bool       `json:"open"`
	InFlight bool       `json:"inFlight"`
	Error    string     `json:"error,omitempty"`
}

// dialog owns the request lifecycle of one control. Every open or close bumps
// gen; a response carrying an older gen is stale and leaves the dialog alone.
// inFlight belongs to the running request and survives close and reopen.
type dialog struct {
	open     bool
	inFlight bool
	err      string
	gen      uint64
}

func (d *dialog) show() {
	if d.open {
		return
	}
	d.open = true
	d.err = ""
	d.gen++
}

func (d *dialog) hide() {
	d.open = false
	d.err = ""
	d.gen++
}

func (d *dialog) state(kind DialogKind) DialogState {
	return DialogState{Kind: kind, Open: d.open, InFlight: d.inFlight, Error: d.err}
}

func (g *Gate) OpenDialog(kind DialogKind) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	if kind == DialogEmergency {
		g.emergencyArmed = true
	}
	g.dialogs[kind].show()
	return nil
}

// CloseDialog dismisses a dialog. A request still in flight keeps running and
// blocks another submit of the same kind, but its outcome no longer touches
// the dialog.
func (g *Gate) CloseDialog(kind DialogKind) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	if kind == DialogEmergency {
		g.emergencyArmed = false
	}
	g.dialogs[kind].hide()
	return nil
}

// begin marks kind in flight and returns the generation the response must match.
func (g *Gate) begin(kind DialogKind) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, ErrClosed
	}
	d := g.dialogs[kind]
	if d.inFlight {
		return 0, ErrInFlight
	}
	d.show()
	d.inFlight = true
	d.err = ""
	return d.gen, nil
}

// endLocked settles a request. Failure keeps the dialog open with the error,
// success closes it. Returns false when the response is stale; the in-flight
// mark is released either way.
func (g *Gate) endLocked(kind DialogKind, gen uint64, err error) bool {
	d := g.dialogs[kind]
	d.inFlight = false
	if g.closed || d.gen != gen {
		return false
	}
	if err != nil {
		d.err = errs.UserMessage(err)
		return true
	}
	d.hide()
	return true
}

// reject fails a request before anything was sent.
func (g *Gate) reject(kind DialogKind, gen uint64, err error) error {
	g.mu.Lock()
	g.endLocked(kind, gen, err)
	g.mu.Unlock()
	return err
}
