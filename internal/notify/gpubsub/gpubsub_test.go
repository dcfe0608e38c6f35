package gpubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/DoyleJ11/queue-draft-backend/internal/dispatch"
	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
	"github.com/DoyleJ11/queue-draft-backend/internal/lobby"
	"github.com/DoyleJ11/queue-draft-backend/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	if testing.Short() {
		t.Skip("short")
	}
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublisher_Notify(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	topic, err := client.CreateTopic(ctx, "queue-events")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "queue-events-test", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	p := NewPublisher(client, "queue-events", zaptest.NewLogger(t))
	p.Notify(ctx, lobby.Event{
		Type:     lobby.EventPhaseChanged,
		Queue:    4,
		From:     lobby.PhaseFilling,
		To:       lobby.PhaseCaptainVote,
		Snapshot: lobby.Snapshot{Queue: 4, Version: 10, Phase: lobby.PhaseCaptainVote},
	})
	p.Close()

	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var got types.ServerMessage
	var attrs map[string]string
	err = sub.Receive(rctx, func(_ context.Context, m *pubsub.Message) {
		attrs = m.Attributes
		_ = json.Unmarshal(m.Data, &got)
		m.Ack()
		cancel()
	})
	require.NoError(t, err)
	assert.Equal(t, types.MsgPhaseChanged, got.Type)
	assert.Equal(t, 4, got.Queue)
	assert.Equal(t, "captain_vote", got.To)
	assert.Equal(t, map[string]string{"event": "phase_changed", "queue": "4"}, attrs)
}

type fakeHandler struct {
	mu   sync.Mutex
	err  error
	seen []types.ClientMessage
	done chan struct{}
	want int
}

func (f *fakeHandler) Handle(_ context.Context, src dispatch.Source, msg types.ClientMessage) (lobby.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if src != dispatch.SourcePubSub {
		return lobby.Result{}, fmt.Errorf("unexpected source %s", src)
	}
	f.seen = append(f.seen, msg)
	if len(f.seen) == f.want {
		close(f.done)
	}
	return lobby.Result{}, f.err
}

func TestSubscriber_AcksHandledAndRejectedMessages(t *testing.T) {
	client, srv := newTestClient(t)
	ctx := context.Background()
	topic, err := client.CreateTopic(ctx, "queue-commands")
	require.NoError(t, err)
	_, err = client.CreateSubscription(ctx, "queue-commands-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	join, _ := json.Marshal(types.ClientMessage{Type: types.MsgJoin, Queue: 1, ParticipantID: "u1"})
	var ids []string
	for _, data := range [][]byte{join, []byte("{not json")} {
		id, err := topic.Publish(ctx, &pubsub.Message{Data: data}).Get(ctx)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	topic.Stop()

	h := &fakeHandler{err: engine.ErrQueueFull, done: make(chan struct{}), want: 1}
	s := NewSubscriber(client, "queue-commands-sub", h, zaptest.NewLogger(t))
	rctx, cancel := context.WithCancel(ctx)
	errc := make(chan error, 1)
	go func() { errc <- s.Start(rctx) }()

	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never called")
	}
	require.Eventually(t, func() bool {
		return srv.Message(ids[0]).Acks > 0 && srv.Message(ids[1]).Acks > 0
	}, 5*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-errc)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, "u1", h.seen[0].ParticipantID)
}

func TestRetry(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{engine.ErrAlreadyQueued, false},
		{engine.ErrNotAuthorized, false},
		{dispatch.ErrInvalidMessage, false},
		{fmt.Errorf("%w: create match: %w", engine.ErrPersistence, errors.New("conn refused")), true},
		{context.DeadlineExceeded, true},
		{lobby.ErrClosed, true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Retry(tc.err), "Retry(%v)", tc.err)
	}
}
