package ports

import "time"

type SchedulerService interface {
	Start()
	Stop()

	Now() time.Time
	ScheduleTaskOnce(at int64, task func()) error
}
