// internal/trigger/trigger.go
package trigger

import (
	"fmt"
	"time"
)

// Event types carried by Event.Type.
const (
	EventFileChanged = "file_changed"
	EventTimer       = "timer"
	EventInitial     = "initial"
)

// Event is delivered to the callback each time the trigger fires.
type Event struct {
	TriggerID  int64
	Controller string
	Type       string
	// Sequence counts fires of one trigger instance, starting at 1.
	Sequence  uint64
	Timestamp time.Time
	Data      map[string]any
}

// Callback receives trigger events. It runs on the trigger's coordinator
// goroutine; the next fire waits until it returns.
type Callback func(Event)

// Info is a point-in-time status snapshot.
type Info struct {
	NextRunInfo string
	// NextRun is the next timer fire; zero when no timer is armed.
	NextRun time.Time
}

// NextRunTimestamp formats NextRun, or returns "none".
func (i Info) NextRunTimestamp() string {
	if i.NextRun.IsZero() {
		return "none"
	}
	return i.NextRun.Format(time.RFC3339)
}

// Trigger is the control contract a host engine drives.
type Trigger interface {
	// Start parses parameters, sets up watches and reports whether the
	// trigger was activated by this call.
	Start(controller any, parameters string, callback Callback) (bool, error)
	// Stop releases all watches and the timer. Safe to call repeatedly.
	Stop(controller any)
	Info() Info
}

// Node identifies the host object that owns a trigger. Controllers that do
// not implement it are logged as "Unknown controller type".
type Node interface {
	NodeID() string
	NodeName() string
	NodeType() string
}

func controllerInfo(controller any) string {
	if n, ok := controller.(Node); ok {
		return fmt.Sprintf("%s/%s, Type: %s", n.NodeID(), n.NodeName(), n.NodeType())
	}
	return "Unknown controller type"
}
