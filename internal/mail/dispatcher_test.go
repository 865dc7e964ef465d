package mail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrueng/user-management-app/pkg/logger"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSender struct {
	name    string
	err     error
	release chan struct{} // when set, Send blocks until closed
	started chan struct{}

	mu             sync.Mutex
	sent           []*Message
	correlationIDs []string
}

func (s *fakeSender) Name() string { return s.name }

func (s *fakeSender) Send(ctx context.Context, msg *Message) error {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	s.correlationIDs = append(s.correlationIDs, logger.CorrelationIDFromContext(ctx))
	return s.err
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func msg(template string) *Message {
	return &Message{ID: template, Template: template, Username: "alice"}
}

func TestDispatcher_DeliversQueuedMessages(t *testing.T) {
	sender := &fakeSender{name: "fake-deliver"}
	d := NewDispatcher(sender, DispatcherConfig{QueueSize: 10, Workers: 3, SendTimeout: time.Second}, discardLogger())

	for i := 0; i < 5; i++ {
		assert.True(t, d.Enqueue(context.Background(), msg(TemplateVerifyEmail)))
	}
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 5, sender.count())
}

func TestDispatcher_FullQueueDropsWithoutBlocking(t *testing.T) {
	sender := &fakeSender{name: "fake-full", release: make(chan struct{}), started: make(chan struct{}, 1)}
	d := NewDispatcher(sender, DispatcherConfig{QueueSize: 1, Workers: 1, SendTimeout: 5 * time.Second}, discardLogger())

	dropsBefore := testutil.ToFloat64(messagesDropped.WithLabelValues("full-b"))

	require.True(t, d.Enqueue(context.Background(), msg("full-a")))
	<-sender.started // the only worker is now busy
	require.True(t, d.Enqueue(context.Background(), msg("full-b")))

	done := make(chan bool)
	go func() { done <- d.Enqueue(context.Background(), msg("full-b")) }()
	select {
	case accepted := <-done:
		assert.False(t, accepted)
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
	assert.Equal(t, dropsBefore+1, testutil.ToFloat64(messagesDropped.WithLabelValues("full-b")))

	close(sender.release)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 2, sender.count())
}

func TestDispatcher_EnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(&fakeSender{name: "fake-closed"}, DispatcherConfig{}, discardLogger())
	require.NoError(t, d.Close(context.Background()))

	assert.False(t, d.Enqueue(context.Background(), msg(TemplateResetPassword)))
	assert.ErrorIs(t, d.Close(context.Background()), ErrDispatcherClosed)
}

func TestDispatcher_CloseHonoursContext(t *testing.T) {
	sender := &fakeSender{name: "fake-slow", release: make(chan struct{}), started: make(chan struct{}, 1)}
	d := NewDispatcher(sender, DispatcherConfig{QueueSize: 1, Workers: 1, SendTimeout: 5 * time.Second}, discardLogger())
	defer close(sender.release)

	require.True(t, d.Enqueue(context.Background(), msg(TemplateVerifyEmail)))
	<-sender.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
}

func TestDispatcher_SendErrorIsCountedNotReturned(t *testing.T) {
	sender := &fakeSender{name: "fake-error", err: errors.New("smtp down")}
	d := NewDispatcher(sender, DispatcherConfig{QueueSize: 1, Workers: 1}, discardLogger())

	before := testutil.ToFloat64(messagesSent.WithLabelValues("fake-error", "error"))
	require.True(t, d.Enqueue(context.Background(), msg(TemplateVerifyEmail)))
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, before+1, testutil.ToFloat64(messagesSent.WithLabelValues("fake-error", "error")))
}

func TestDispatcher_KeepsRequestValuesButNotCancellation(t *testing.T) {
	sender := &fakeSender{name: "fake-ctx"}
	d := NewDispatcher(sender, DispatcherConfig{QueueSize: 1, Workers: 1}, discardLogger())

	ctx, cancel := context.WithCancel(logger.WithCorrelationID(context.Background(), "corr-42"))
	require.True(t, d.Enqueue(ctx, msg(TemplateVerifyEmail)))
	cancel()
	require.NoError(t, d.Close(context.Background()))

	require.Equal(t, 1, sender.count())
	assert.Equal(t, []string{"corr-42"}, sender.correlationIDs)
}

func TestDispatcher_ConcurrentEnqueueAndClose(t *testing.T) {
	sender := &fakeSender{name: "fake-race"}
	d := NewDispatcher(sender, DispatcherConfig{QueueSize: 8, Workers: 2}, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Enqueue(context.Background(), msg(TemplateVerifyEmail))
		}()
	}
	go func() { _ = d.Close(context.Background()) }()
	wg.Wait()
	assert.LessOrEqual(t, sender.count(), 50)
}
