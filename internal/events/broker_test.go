package events

import "testing"

func drain(c chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-c:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestBroker_PublishToMatchingSubscribers(t *testing.T) {
	b := NewBroker()
	all := b.Subscribe("")
	jobA := b.Subscribe("job-a")
	progressOnly := b.Subscribe("", KindJobProgress)
	defer all.Close()
	defer jobA.Close()
	defer progressOnly.Close()

	b.Publish(Event{Kind: KindJobStatus, JobID: "job-a", Payload: "running"})
	b.Publish(Event{Kind: KindJobStatus, JobID: "job-b", Payload: "queued"})
	b.Publish(Event{Kind: KindJobProgress, JobID: "job-a", Payload: 30})

	if got := drain(all.C); len(got) != 3 {
		t.Errorf("unscoped subscriber got %d events, want 3", len(got))
	}
	got := drain(jobA.C)
	if len(got) != 2 {
		t.Fatalf("job-a subscriber got %d events, want 2", len(got))
	}
	for _, ev := range got {
		if ev.JobID != "job-a" {
			t.Errorf("job-a subscriber received event for %q", ev.JobID)
		}
	}
	got = drain(progressOnly.C)
	if len(got) != 1 || got[0].Kind != KindJobProgress {
		t.Errorf("kind-filtered subscriber got %v", got)
	}
}

func TestBroker_UnscopedEventsReachJobSubscribers(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("job-a")
	defer sub.Close()

	b.Publish(Event{Kind: KindLicenseStatus})
	if got := drain(sub.C); len(got) != 1 {
		t.Errorf("got %d events, want 1 (license events are broadcast)", len(got))
	}
}

func TestBroker_CloseIsIdempotent(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("")
	sub.Close()
	sub.Close() // must not panic

	if b.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d, want 0", b.SubscriberCount())
	}
	// Publishing after close must not panic either.
	b.Publish(Event{Kind: KindJobStatus, JobID: "x"})
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("")
	defer sub.Close()

	// Overflow the buffer; Publish must keep returning.
	for i := 0; i < 200; i++ {
		b.Publish(Event{Kind: KindJobLogs, JobID: "j", Payload: i})
	}
	if got := len(drain(sub.C)); got != 64 {
		t.Errorf("buffered %d events, want 64 (rest dropped)", got)
	}
}
