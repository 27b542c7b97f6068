package domain

import "time"

// EventKind classifies a trade-task event.
type EventKind string

const (
	EventExecuted EventKind = "Executed"
	EventStopped  EventKind = "Stopped"
)

// Event is a best-effort progress notification for observers of a task.
// An Executed event with an empty Msg is a heartbeat marking the end of a cycle.
type Event struct {
	TaskID   string    `json:"task_id"`
	WorkerID *uint32   `json:"worker_id"`
	Kind     EventKind `json:"kind"`
	Msg      string    `json:"msg"`
	Ts       int64     `json:"ts"` // unix millis
}

// NewTaskEvent builds an event attributed to the task as a whole.
func NewTaskEvent(taskID string, kind EventKind, msg string) Event {
	return Event{TaskID: taskID, Kind: kind, Msg: msg, Ts: time.Now().UnixMilli()}
}

// NewWorkerEvent builds an event attributed to one worker of a task.
func NewWorkerEvent(taskID string, workerID uint32, kind EventKind, msg string) Event {
	id := workerID
	return Event{TaskID: taskID, WorkerID: &id, Kind: kind, Msg: msg, Ts: time.Now().UnixMilli()}
}

// Channel is the per-task label observers subscribe to.
func (e Event) Channel() string {
	return TaskChannel(e.TaskID)
}

// TaskChannel returns the event channel label of a task.
func TaskChannel(taskID string) string {
	return "task_" + taskID
}
