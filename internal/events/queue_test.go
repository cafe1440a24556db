package events

import (
	"fmt"
	"sync"
	"testing"
)

func TestQueuePreservesPushOrder(t *testing.T) {
	q := NewQueue()
	q.Push(Start("a"))
	q.Push(Output("b"))
	q.Push(Pods("c"))

	got := q.Drain()
	want := []Event{Start("a"), Output("b"), Pods("c")}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
	if rest := q.Drain(); rest != nil {
		t.Fatalf("expected empty drain, got %v", rest)
	}
}

func TestQueueConcurrentProducersLoseNothing(t *testing.T) {
	q := NewQueue()
	const producers = 8
	const perProducer = 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(Output(fmt.Sprintf("%d:%d", p, i)))
			}
		}(p)
	}

	seen := make(map[string]int)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	collect := func() {
		for _, e := range q.Drain() {
			seen[e.Message]++
		}
	}
loop:
	for {
		select {
		case <-q.Ready():
			collect()
		case <-done:
			collect()
			break loop
		}
	}

	if len(seen) != producers*perProducer {
		t.Fatalf("expected %d distinct events, got %d", producers*perProducer, len(seen))
	}
	for msg, count := range seen {
		if count != 1 {
			t.Fatalf("event %s delivered %d times", msg, count)
		}
	}
}

func TestQueueKeepsPerProducerOrder(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for p := 0; p < 2; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				q.Push(Output(fmt.Sprintf("%d:%03d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	last := map[byte]string{}
	for _, e := range q.Drain() {
		key := e.Message[0]
		if prev, ok := last[key]; ok && prev >= e.Message {
			t.Fatalf("producer %c out of order: %s after %s", key, e.Message, prev)
		}
		last[key] = e.Message
	}
}

func TestEventMarshalOmitsEmptyMessage(t *testing.T) {
	data, err := Complete().Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"type":"complete"}` {
		t.Fatalf("unexpected payload %s", data)
	}
	data, err = Error("boom").Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"type":"error","message":"boom"}` {
		t.Fatalf("unexpected payload %s", data)
	}
}
