package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/examhall/internal/i18n"
	"github.com/pavelanni/examhall/internal/model"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		panic(err)
	}
	m.Run()
}

type sent struct{ to, body string }

type recordingSink struct {
	mu      sync.Mutex
	msgs    []sent
	started chan struct{}
	release chan struct{}
	err     error
}

func (s *recordingSink) Send(ctx context.Context, to, body string) error {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, sent{to, body})
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func event(roll, parent string) model.ResultEvent {
	return model.ResultEvent{
		Roll: roll, Name: "Anil", Parent: parent,
		Cohort: model.Cohort{Year: "Y2", Branch: "CS", Section: "A"},
		ExamID: 7, Score: 2, Total: 2,
	}
}

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"9848012345", "+919848012345"},
		{" 98480-12345 ", "+919848012345"},
		{"+14155550100", "+14155550100"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.in, "+91"); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDispatcherDelivers(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, Config{})

	d.Publish(event("101", "9848012345"))
	d.Publish(event("102", ""))
	closeDispatcher(t, d)

	if sink.count() != 1 {
		t.Fatalf("sent %d messages, want 1", sink.count())
	}
	msg := sink.msgs[0]
	if msg.to != "+919848012345" {
		t.Errorf("to = %q", msg.to)
	}
	if !strings.Contains(msg.body, "Roll: 101") || !strings.Contains(msg.body, "Marks: 2/2") {
		t.Errorf("unexpected body:\n%s", msg.body)
	}
}

func TestDispatcherTelugu(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, Config{Lang: "te", CountryCode: "+1"})
	d.Publish(event("101", "4155550100"))
	closeDispatcher(t, d)

	if sink.count() != 1 {
		t.Fatalf("sent %d messages, want 1", sink.count())
	}
	if sink.msgs[0].to != "+14155550100" {
		t.Errorf("to = %q", sink.msgs[0].to)
	}
	if !strings.Contains(sink.msgs[0].body, "రోల్: 101") {
		t.Errorf("body not in telugu:\n%s", sink.msgs[0].body)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &recordingSink{started: make(chan struct{}, 4), release: make(chan struct{})}
	d := NewDispatcher(sink, Config{QueueSize: 1})

	d.Publish(event("101", "1"))
	<-sink.started // worker is now blocked inside Send

	done := make(chan struct{})
	go func() {
		d.Publish(event("102", "2")) // fills the queue
		d.Publish(event("103", "3")) // dropped
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	close(sink.release)
	closeDispatcher(t, d)
	if sink.count() != 2 {
		t.Errorf("sent %d messages, want 2", sink.count())
	}
}

func TestDispatcherSinkFailure(t *testing.T) {
	sink := &recordingSink{err: errors.New("gateway down")}
	d := NewDispatcher(sink, Config{})
	d.Publish(event("101", "1"))
	d.Publish(event("102", "2"))
	closeDispatcher(t, d)

	if sink.count() != 2 {
		t.Errorf("a failed send stopped the worker: %d attempts", sink.count())
	}
}

func TestPublishAfterClose(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, Config{})
	closeDispatcher(t, d)
	closeDispatcher(t, d)

	d.Publish(event("101", "1"))
	if sink.count() != 0 {
		t.Errorf("event published after close was sent")
	}
}

func TestHTTPSink(t *testing.T) {
	var got gatewayMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		if got.To == "+10000000000" {
			http.Error(w, "rejected", http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, srv.Client())
	if err := sink.Send(context.Background(), "+919848012345", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.To != "+919848012345" || got.Body != "hello" {
		t.Errorf("gateway received %+v", got)
	}

	err := sink.Send(context.Background(), "+10000000000", "hello")
	if err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Errorf("expected gateway error, got %v", err)
	}
}
