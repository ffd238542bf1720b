package model

import "time"

// JobRun is one execution of a named background job.
type JobRun struct {
	ID        int64
	JobName   string
	StartedAt time.Time
	EndedAt   *time.Time
	Status    JobStatus
	Duration  time.Duration
	Error     string
	Logs      []LogEntry
}

// LogEntry is a log line captured during a JobRun. Duration is set for timer entries.
type LogEntry struct {
	ID        int64
	JobRunID  int64
	Timestamp time.Time
	Level     LogLevel
	Message   string
	Duration  *time.Duration
}
