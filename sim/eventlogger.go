package sim

import "github.com/sirupsen/logrus"

// EventLogger is a hook that logs every event that the engine handles.
type EventLogger struct {
	log *logrus.Entry
}

// NewEventLogger creates a hook that logs events to the given logger.
func NewEventLogger(log *logrus.Entry) *EventLogger {
	return &EventLogger{log: log}
}

// Func logs the event before it is handled.
func (l *EventLogger) Func(ctx HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}

	evt := ctx.Item.(Event)
	l.log.WithField("time", float64(evt.Time())).
		Debugf("handling %T", evt)
}
