package model

// JobStatus represents the lifecycle state of a job run.
type JobStatus string

const (
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailure JobStatus = "failure"
)

// IsTerminal reports whether the status can no longer change.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailure
}

// LogLevel is the level stored with a job log entry.
type LogLevel string

const (
	LogLevelLog     LogLevel = "log"
	LogLevelWarn    LogLevel = "warn"
	LogLevelError   LogLevel = "error"
	LogLevelTimeEnd LogLevel = "timeEnd"
)

// ActivityMode selects how the activity updater applies counters.
type ActivityMode string

const (
	// ActivityModeIncremental fetches since the last successful run and adds deltas.
	ActivityModeIncremental ActivityMode = "incremental"
	// ActivityModeFull re-fetches since inception and replaces counters and commits.
	ActivityModeFull ActivityMode = "full"
)

// Misc keys for scalar state.
const (
	MiscKeySpotlight     = "spotlight"
	MiscKeyDevFundData   = "devFundData"
	MiscKeyDevFundLabels = "devFundLabels"
	MiscKeyDevFundDonors = "devFundDonors"

	miscLastRunPrefix = "cron_last_run_"
)

// LastRunKey returns the misc key holding the last successful run time of a job.
func LastRunKey(jobName string) string {
	return miscLastRunPrefix + jobName
}
