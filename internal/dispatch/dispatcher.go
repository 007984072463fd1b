// Package dispatch fans analysis results out to registered observers.
package dispatch

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/interviewstream/internal/logger"
	"github.com/yoockh/interviewstream/internal/metrics"
	"github.com/yoockh/interviewstream/internal/models"
)

type Callback func(models.AnalysisResult)

type subscription struct {
	id uint64
	cb Callback
}

type Dispatcher struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscription
	log    logrus.FieldLogger
}

func NewDispatcher(log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{log: logger.OrDiscard(log)}
}

// Subscribe registers cb and returns a func that removes it. Calling the
// returned func more than once is harmless.
func (d *Dispatcher) Subscribe(cb Callback) (unsubscribe func()) {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subs = append(d.subs, subscription{id: id, cb: cb})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(id) })
	}
}

func (d *Dispatcher) remove(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.subs {
		if s.id == id {
			d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
			return
		}
	}
}

// Publish calls every subscriber registered at the time of the call, in
// registration order. A panicking subscriber is logged and skipped.
func (d *Dispatcher) Publish(r models.AnalysisResult) {
	d.mu.Lock()
	subs := make([]subscription, len(d.subs))
	copy(subs, d.subs)
	d.mu.Unlock()

	for _, s := range subs {
		d.invoke(s, r)
	}
}

func (d *Dispatcher) invoke(s subscription, r models.AnalysisResult) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.SubscriberPanicsTotal.Inc()
			d.log.WithFields(logrus.Fields{
				"subscriber": s.id,
				"type":       r.Type,
				"session_id": r.SessionID,
			}).Error(fmt.Sprintf("analysis subscriber panicked: %v", rec))
		}
	}()
	s.cb(r)
}

func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// Clear drops every subscriber.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	d.subs = nil
	d.mu.Unlock()
}
