// Package events defines the bus subjects and event types emitted by the
// orchestration core.
package events

// Event types published on the bus. API consumers receive these over the
// websocket relay as well.
const (
	SessionCreated   = "session.created"
	SessionPaused    = "session.paused"
	SessionResumed   = "session.resumed"
	SessionCompleted = "session.completed"
	SessionFailed    = "session.failed"
	SessionMerged    = "session.merged"
	TaskStarted      = "task.started"
	TaskCompleted    = "task.completed"
	TaskFailed       = "task.failed"
	TaskRejected     = "task.rejected"
	MessageAdded     = "message.added"
)

// Subjects used on the event bus. Session events carry the session id as
// the final token so subscribers can filter with NATS-style wildcards.
const (
	SubjectSessions = "agenttool.sessions"
	SubjectTasks    = "agenttool.tasks"
	SubjectMessages = "agenttool.messages"
	SubjectAll      = "agenttool.>"
)
