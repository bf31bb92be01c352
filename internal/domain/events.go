package domain

import "time"

// AppliedEvent is published after a rotation successfully changes the
// desktop. Observers (GUI, tray) subscribe instead of hooking callbacks
// into the scheduler.
type AppliedEvent struct {
	ID          string            // Unique event id
	Trigger     TriggerKind       // What initiated the rotation
	Assignments MonitorAssignment // What was applied where
	At          time.Time
}
