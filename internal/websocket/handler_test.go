package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/daybook/internal/model"
)

type fakeSubscriber struct {
	mu       sync.Mutex
	onUpdate func(model.Month)
	ready    chan struct{}
	closed   chan struct{}
	err      error
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{ready: make(chan struct{}), closed: make(chan struct{})}
}

func (f *fakeSubscriber) Subscribe(_ context.Context, mk model.MonthKey, onUpdate func(model.Month)) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	onUpdate(model.Month{"01": model.DefaultDay()})
	f.mu.Lock()
	f.onUpdate = onUpdate
	f.mu.Unlock()
	close(f.ready)
	return func() { close(f.closed) }, nil
}

func (f *fakeSubscriber) push(m model.Month) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onUpdate(m)
}

func newFeedServer(t *testing.T, sub Subscriber) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/calendar/{year}/{month}", HandleCalendarFeed(sub, slog.Default()))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func readMessage(t *testing.T, ctx context.Context, conn *ws.Conn) MonthMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg MonthMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

func TestCalendarFeedStreamsSnapshots(t *testing.T) {
	sub := newFakeSubscriber()
	srv := newFeedServer(t, sub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/calendar/2025/05"
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	first := readMessage(t, ctx, conn)
	if first.Type != "calendar_month" || first.Month != "2025-05" {
		t.Errorf("first = %+v", first)
	}
	if first.Days["01"].Status != model.StatusAvailable {
		t.Errorf("first days = %+v", first.Days)
	}

	<-sub.ready
	reason := "Holiday"
	sub.push(model.Month{"26": {Status: model.StatusUnavailable, Reason: &reason}})

	second := readMessage(t, ctx, conn)
	if second.Days["26"].Status != model.StatusUnavailable {
		t.Errorf("second days = %+v", second.Days)
	}

	conn.Close(ws.StatusNormalClosure, "")
	select {
	case <-sub.closed:
	case <-ctx.Done():
		t.Fatal("subscription not released after disconnect")
	}
}

func TestCalendarFeedBadMonth(t *testing.T) {
	srv := newFeedServer(t, newFakeSubscriber())

	resp, err := http.Get(srv.URL + "/ws/calendar/2025/13")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCalendarFeedSubscribeError(t *testing.T) {
	sub := newFakeSubscriber()
	sub.err = errors.New("store down")
	srv := newFeedServer(t, sub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/calendar/2025/05"
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	_, _, err = conn.Read(ctx)
	if ws.CloseStatus(err) != ws.StatusInternalError {
		t.Errorf("close status = %v, want internal error", ws.CloseStatus(err))
	}
}

func TestOfferKeepsNewest(t *testing.T) {
	c := &Client{send: make(chan []byte, 1)}
	c.offer([]byte("a"))
	c.offer([]byte("b"))
	c.offer([]byte("c"))

	if got := string(<-c.send); got != "c" {
		t.Errorf("queued = %q, want c", got)
	}
	select {
	case extra := <-c.send:
		t.Errorf("unexpected extra message %q", extra)
	default:
	}
}
