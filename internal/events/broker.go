// Package events provides the typed publish/subscribe broker that carries
// job lifecycle, progress and log events to realtime observers.
package events

import "sync"

// Kind identifies an event stream.
type Kind string

const (
	KindJobStatus     Kind = "job-status"
	KindJobProgress   Kind = "job-progress"
	KindJobLogs       Kind = "job-logs"
	KindLicenseStatus Kind = "license-status-changed"
	KindSystemStatus  Kind = "system-status-changed"
)

// Event is one message on the broker. JobID is empty for the un-scoped
// license and system streams.
type Event struct {
	Kind    Kind
	JobID   string
	Payload any
}

// Subscription is a live subscriber handle. Events arrive on C until Close
// is called; Close is idempotent.
type Subscription struct {
	C chan Event

	broker *Broker
	kinds  map[Kind]bool
	jobID  string
	once   sync.Once
}

// Matches reports whether an event belongs on this subscription.
func (s *Subscription) Matches(ev Event) bool {
	if len(s.kinds) > 0 && !s.kinds[ev.Kind] {
		return false
	}
	// Job-scoped subscriptions see only their job, plus un-scoped events.
	if s.jobID != "" && ev.JobID != "" && ev.JobID != s.jobID {
		return false
	}
	return true
}

// Close releases the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.remove(s)
	})
}

// Broker fans events out to an additive list of subscribers. Publishing
// never blocks: a subscriber that cannot keep up has events dropped rather
// than stalling the dispatcher.
type Broker struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a subscriber. With no kinds the subscription receives
// every kind; a non-empty jobID narrows job-scoped events to that job.
func (b *Broker) Subscribe(jobID string, kinds ...Kind) *Subscription {
	sub := &Subscription{
		C:      make(chan Event, 64),
		broker: b,
		jobID:  jobID,
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.C)
	}
	b.mu.Unlock()
}

// Publish delivers an event to every matching subscriber.
func (b *Broker) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if !sub.Matches(ev) {
			continue
		}
		select {
		case sub.C <- ev:
		default:
			// Slow subscriber; drop rather than block publishers.
		}
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
