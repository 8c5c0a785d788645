package dispatch_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hostpulse/hostpulse/internal/dispatch"
)

// eventLog records handler and callback events in arrival order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func startDispatcher(t *testing.T, d *dispatch.Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestDispatcherFIFOWithHeadRetry(t *testing.T) {
	t.Parallel()
	log := &eventLog{}
	var mu sync.Mutex
	rejectedA := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		fail := string(body) == "A" && !rejectedA
		if fail {
			rejectedA = true
		}
		mu.Unlock()
		if fail {
			log.add("reject:A")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		log.add("sent:" + string(body))
	}))
	defer srv.Close()

	d := dispatch.NewDispatcher(srv.URL, srv.Client(), dispatch.Options{
		RetryInterval: 20 * time.Millisecond,
		CallbackGrace: time.Millisecond,
	})
	startDispatcher(t, d)

	d.Enqueue(dispatch.Request{Body: []byte("A"), Callback: func() { log.add("ack:A") }})
	d.Enqueue(dispatch.Request{Body: []byte("B")})
	d.Enqueue(dispatch.Request{Body: []byte("C")})

	waitFor(t, func() bool { return len(log.snapshot()) >= 5 })
	// The failed head is retried before anything else moves; B and C follow
	// only after A's acknowledgement.
	assert.Equal(t, []string{"reject:A", "sent:A", "ack:A", "sent:B", "sent:C"}, log.snapshot())
}

func TestDispatcherCallbackAfterAck(t *testing.T) {
	t.Parallel()
	log := &eventLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add("sent")
	}))
	defer srv.Close()

	d := dispatch.NewDispatcher(srv.URL, srv.Client(), dispatch.Options{
		RetryInterval: 20 * time.Millisecond,
		CallbackGrace: time.Millisecond,
	})
	startDispatcher(t, d)

	d.Enqueue(dispatch.Request{Body: []byte("x"), Callback: func() { log.add("callback") }})

	waitFor(t, func() bool { return len(log.snapshot()) == 2 })
	assert.Equal(t, []string{"sent", "callback"}, log.snapshot())
}

func TestDispatcherStopsWhileRetryPending(t *testing.T) {
	t.Parallel()
	attempts := 0
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := dispatch.NewDispatcher(srv.URL, srv.Client(), dispatch.Options{RetryInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()

	d.Enqueue(dispatch.Request{Body: []byte("x")})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts >= 1
	})

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop while waiting out a retry")
	}
}
