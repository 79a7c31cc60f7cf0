package unirender

import (
	"encoding/json"
	"fmt"
	"time"
)

// scriptStep is a single action in a frame script.
type scriptStep struct {
	Action  string  `json:"action"`
	Node    NodeID  `json:"node,omitempty"`
	X       float64 `json:"x,omitempty"`
	Y       float64 `json:"y,omitempty"`
	W       float64 `json:"w,omitempty"`
	H       float64 `json:"h,omitempty"`
	Value   float64 `json:"value,omitempty"`
	Visible bool    `json:"visible,omitempty"`
	Label   string  `json:"label,omitempty"`
	Frames  int     `json:"frames,omitempty"`
}

// frameScript is the top-level JSON structure of a frame script.
type frameScript struct {
	Steps []scriptStep `json:"steps"`
}

// FrameScript sequences tree mutations and captures across frames. Each
// frame executes one step, then RunFrame is called.
//
//	{"steps": [
//	  {"action": "move", "node": 3, "x": 100, "y": 40},
//	  {"action": "wait", "frames": 2},
//	  {"action": "capture", "label": "after-move"}
//	]}
type FrameScript struct {
	steps     []scriptStep
	cursor    int
	waitCount int
	done      bool
}

// LoadFrameScript parses a JSON frame script.
func LoadFrameScript(jsonData []byte) (*FrameScript, error) {
	var script frameScript
	if err := json.Unmarshal(jsonData, &script); err != nil {
		return nil, fmt.Errorf("parse frame script: %w", err)
	}
	if len(script.Steps) == 0 {
		return nil, fmt.Errorf("parse frame script: no steps")
	}
	for i, st := range script.Steps {
		switch st.Action {
		case "move", "resize", "alpha", "rotate", "remove", "visible":
			if st.Node == InvalidNodeID {
				return nil, fmt.Errorf("parse frame script: step %d: %s needs a node", i, st.Action)
			}
		case "wait", "capture":
		default:
			return nil, fmt.Errorf("parse frame script: step %d: unknown action %q", i, st.Action)
		}
	}
	return &FrameScript{steps: script.Steps}, nil
}

// Done reports whether all steps have been executed.
func (r *FrameScript) Done() bool {
	return r.done
}

// step executes at most one step against s.
func (r *FrameScript) step(s *Service) error {
	if r.done {
		return nil
	}
	if r.waitCount > 0 {
		r.waitCount--
		return nil
	}
	if r.cursor >= len(r.steps) {
		r.done = true
		return nil
	}

	st := r.steps[r.cursor]
	r.cursor++

	if err := r.apply(s, st); err != nil {
		return err
	}
	if r.cursor >= len(r.steps) && r.waitCount == 0 {
		r.done = true
	}
	return nil
}

func (r *FrameScript) apply(s *Service, st scriptStep) error {
	switch st.Action {
	case "wait":
		if st.Frames > 0 {
			r.waitCount = st.Frames - 1 // this frame counts as one
		}
		return nil
	case "capture":
		s.Capture(st.Label)
		return nil
	}

	n, err := s.tree.Lookup(st.Node)
	if err != nil {
		return fmt.Errorf("frame script %s: %w", st.Action, err)
	}
	b := n.props.Bounds
	switch st.Action {
	case "move":
		n.SetBounds(st.X, st.Y, b.Width, b.Height)
	case "resize":
		n.SetBounds(b.Left, b.Top, st.W, st.H)
	case "alpha":
		n.SetAlpha(st.Value)
	case "rotate":
		n.SetRotation(st.Value)
	case "visible":
		n.SetVisible(st.Visible)
	case "remove":
		s.tree.Remove(st.Node)
	}
	return nil
}

// Run executes the script against s, one step per frame, starting at start
// and advancing by dt. It returns the number of frames run.
func (r *FrameScript) Run(s *Service, start time.Time, dt time.Duration) (int, error) {
	frames := 0
	now := start
	for !r.done {
		if err := r.step(s); err != nil {
			return frames, err
		}
		if err := s.RunFrame(now); err != nil {
			return frames, err
		}
		frames++
		now = now.Add(dt)
	}
	return frames, nil
}
