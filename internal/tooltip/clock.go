package tooltip

import "time"

// Clock — источник таймеров подсказки. В тестах подменяется ручными часами.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock — часы на time.AfterFunc.
var RealClock Clock = realClock{}
