package ecs

import (
	"github.com/phanxgames/unirender"

	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/features/events"
)

// VisibilityEvent carries the visibility level of every window on screen
// after a frame in which it changed.
type VisibilityEvent struct {
	Levels map[unirender.NodeID]unirender.VisibleLevel
}

// Level returns the level of window id, or VisibleInvisible if the window
// is not in the event.
func (e VisibilityEvent) Level(id unirender.NodeID) unirender.VisibleLevel {
	if l, ok := e.Levels[id]; ok {
		return l
	}
	return unirender.VisibleInvisible
}

// VisibilityEventType is the Donburi event type for window visibility
// changes.
var VisibilityEventType = events.NewEventType[VisibilityEvent]()

// NewVisibilitySink returns a VisibilityCallback that publishes every
// visibility map to VisibilityEventType on world. Events are consumed with
// events.Subscribe and ProcessEvents.
func NewVisibilitySink(world donburi.World) unirender.VisibilityCallback {
	return func(levels map[unirender.NodeID]unirender.VisibleLevel) {
		VisibilityEventType.Publish(world, VisibilityEvent{Levels: levels})
	}
}
