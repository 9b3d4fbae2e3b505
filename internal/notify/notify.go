// Package notify reports the outcome of user actions.
package notify

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Notifier shows the outcome of a user action.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// LogNotifier writes notifications to a logrus logger.
type LogNotifier struct {
	log logrus.FieldLogger
}

// NewLogNotifier logs successes at info and failures at error level.
func NewLogNotifier(logger logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{log: logger.WithField("component", "notify")}
}

func (n *LogNotifier) Success(msg string) { n.log.Info(msg) }

func (n *LogNotifier) Error(msg string) { n.log.Error(msg) }

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notification is one recorded message.
type Notification struct {
	Kind    Kind
	Message string
}

// Recorder keeps every notification in order.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

func (r *Recorder) Success(msg string) { r.add(KindSuccess, msg) }

func (r *Recorder) Error(msg string) { r.add(KindError, msg) }

func (r *Recorder) add(kind Kind, msg string) {
	r.mu.Lock()
	r.all = append(r.all, Notification{Kind: kind, Message: msg})
	r.mu.Unlock()
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.all...)
}

// Last returns the most recent notification, if any.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.all) == 0 {
		return Notification{}, false
	}
	return r.all[len(r.all)-1], true
}
