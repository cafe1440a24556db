package stream

import "github.com/splax/deploystream/internal/events"

// Sink receives the ordered events of one deployment stream.
type Sink interface {
	Send(events.Event) error
	Heartbeat() error
	Close()
}

// Recorder is an in-memory Sink that keeps every event, used by the synchronous
// endpoints and tests.
type Recorder struct {
	Events     []events.Event
	Heartbeats int
}

// Send records e.
func (r *Recorder) Send(e events.Event) error {
	r.Events = append(r.Events, e)
	return nil
}

// Heartbeat counts keepalives.
func (r *Recorder) Heartbeat() error {
	r.Heartbeats++
	return nil
}

// Close is a no-op; recorded events stay readable.
func (r *Recorder) Close() {}
