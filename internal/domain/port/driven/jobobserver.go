package driven

import "github.com/nanocasa/casa/internal/domain/model"

// JobObserver is notified once per finished job run.
type JobObserver interface {
	ObserveJob(run model.JobRun)
}
