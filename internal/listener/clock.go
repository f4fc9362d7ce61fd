package listener

import "time"

// Timer is a pending delayed call.
type Timer interface {
	Stop() bool
}

// Clock schedules delayed calls. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
