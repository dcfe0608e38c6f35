// Package gpubsub connects queues to Google Cloud Pub/Sub: phase events go
// out on a topic and platform commands come in on a subscription.
package gpubsub

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/DoyleJ11/queue-draft-backend/internal/dispatch"
	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
	"github.com/DoyleJ11/queue-draft-backend/internal/lobby"
	"github.com/DoyleJ11/queue-draft-backend/internal/notify"
	"github.com/DoyleJ11/queue-draft-backend/pkg/types"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Dial opens a client, with explicit credentials when credsFile is set.
func Dial(ctx context.Context, projectID, credsFile string, log *zap.Logger) (*pubsub.Client, error) {
	var opts []option.ClientOption
	if credsFile != "" {
		log.Debug("initializing pubsub client with explicit credentials", zap.String("projectID", projectID), zap.String("credsFile", credsFile))
		opts = append(opts, option.WithCredentialsFile(credsFile))
	} else {
		log.Debug("initializing pubsub client with default credentials", zap.String("projectID", projectID))
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		log.Error("failed to create pubsub client", zap.String("projectID", projectID), zap.Error(err))
		return nil, err
	}
	return client, nil
}

// Publisher sends queue events to a topic. Notify never blocks on the
// network; confirmations are awaited in the background.
type Publisher struct {
	topic   *pubsub.Topic
	log     *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewPublisher(client *pubsub.Client, topicID string, log *zap.Logger) *Publisher {
	return &Publisher{topic: client.Topic(topicID), log: log, timeout: 10 * time.Second}
}

func (p *Publisher) Notify(_ context.Context, ev lobby.Event) {
	msg, err := notify.Message(ev)
	if err != nil {
		p.log.Error("failed to encode queue event", zap.Error(err))
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Error("failed to marshal queue event", zap.Error(err))
		return
	}

	// The queue's context ends at shutdown; confirmations still get their
	// own deadline so in-flight events are not dropped.
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	r := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event": string(ev.Type),
			"queue": strconv.Itoa(ev.Queue),
		},
	})
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()
		id, err := r.Get(ctx)
		if err != nil {
			p.log.Error("failed to publish queue event", zap.String("event", string(ev.Type)), zap.Int("queue", ev.Queue), zap.Error(err))
			return
		}
		p.log.Debug("published queue event", zap.String("messageID", id), zap.String("event", string(ev.Type)))
	}()
}

// Close waits for outstanding publishes and flushes the topic.
func (p *Publisher) Close() {
	p.wg.Wait()
	p.topic.Stop()
}

// Handler applies one inbound platform message.
type Handler interface {
	Handle(ctx context.Context, src dispatch.Source, msg types.ClientMessage) (lobby.Result, error)
}

type Subscriber struct {
	sub     *pubsub.Subscription
	handler Handler
	log     *zap.Logger
}

func NewSubscriber(client *pubsub.Client, subscriptionID string, h Handler, log *zap.Logger) *Subscriber {
	return &Subscriber{sub: client.Subscription(subscriptionID), handler: h, log: log}
}

// Retry reports whether a failed message should be redelivered. Only
// persistence failures and timeouts are worth another attempt; everything
// else would fail the same way again.
func Retry(err error) bool {
	if err == nil {
		return false
	}
	return engine.KindOf(err) == engine.KindPersistence ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, lobby.ErrClosed)
}

// Start receives until ctx is done.
func (s *Subscriber) Start(ctx context.Context) error {
	s.log.Info("pubsub subscriber started", zap.String("subscription", s.sub.ID()))
	return s.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		recvAt := time.Now()
		var msg types.ClientMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			// Ack to drop bad message (poison)
			s.log.Error("failed to unmarshal platform message", zap.String("messageID", m.ID), zap.Error(err))
			m.Ack()
			return
		}

		_, err := s.handler.Handle(ctx, dispatch.SourcePubSub, msg)
		switch {
		case Retry(err):
			s.log.Error("platform message failed; will retry", zap.String("messageID", m.ID), zap.String("type", msg.Type), zap.Error(err))
			m.Nack()
		case err != nil:
			s.log.Info("platform message rejected",
				zap.String("messageID", m.ID),
				zap.String("type", msg.Type),
				zap.Int("queue", msg.Queue),
				zap.String("code", engine.CodeOf(err)),
			)
			m.Ack()
		default:
			s.log.Debug("platform message handled", zap.String("messageID", m.ID), zap.Duration("latency", time.Since(recvAt)))
			m.Ack()
		}
	})
}
