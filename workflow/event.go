package workflow

// EventKind names one entry type of a run's execution history. The wire
// values follow the task-queue convention of activity workers, so external
// consumers can correlate histories across systems.
type EventKind string

const (
	EventWorkflowStarted   EventKind = "WorkflowStarted"
	EventWorkflowCompleted EventKind = "WorkflowCompleted"
	EventWorkflowFailed    EventKind = "WorkflowFailed"

	EventActivityScheduled EventKind = "ActivityTaskScheduled"
	EventActivityStarted   EventKind = "ActivityTaskStarted"
	EventActivityCompleted EventKind = "ActivityTaskCompleted"
	EventActivityFailed    EventKind = "ActivityTaskFailed"

	EventTimerStarted   EventKind = "TimerStarted"
	EventTimerFired     EventKind = "TimerFired"
	EventSignalReceived EventKind = "SignalReceived"
	EventDecisionTaken  EventKind = "DecisionTaken"

	EventSagaCompensating EventKind = "SagaCompensating"
)

// Event is one entry of the execution history. Subject names what the
// event concerns: the activity, rule, condition, timer or signal.
type Event struct {
	Kind    EventKind      `json:"kind"`
	Subject string         `json:"subject,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	// Time is milliseconds since the Unix epoch.
	Time int64 `json:"time"`
}
