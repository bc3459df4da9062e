// Package events fans turn lifecycle events out to in-process subscribers.
package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/franz/api/schemas"
	"github.com/xkilldash9x/franz/internal/observability"
)

// TopicTurns carries every schemas.TurnEvent.
const TopicTurns = "franz.turns"

const outputBuffer = 64

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Bus publishes turn events on an in-memory pub/sub and routes them to
// registered handlers.
type Bus struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	logger *zap.Logger
}

var _ schemas.EventPublisher = (*Bus)(nil)

// NewBus creates the bus. Handlers must be added before Run.
func NewBus(logger *zap.Logger) (*Bus, error) {
	logger = logger.Named("events")
	wl := observability.NewWatermillLogger(logger)

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: outputBuffer,
	}, wl)

	router, err := message.NewRouter(message.RouterConfig{}, wl)
	if err != nil {
		return nil, fmt.Errorf("creating event router: %w", err)
	}

	return &Bus{pubsub: pubsub, router: router, logger: logger}, nil
}

// Publish encodes the event and sends it on TopicTurns. Events published
// while nothing is subscribed are dropped.
func (b *Bus) Publish(ctx context.Context, ev schemas.TurnEvent) error {
	payload, err := jsonAPI.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding turn event: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("type", string(ev.Type))
	return b.pubsub.Publish(TopicTurns, msg)
}

// Handle registers fn for every turn event. Handler errors are logged and the
// message is acknowledged anyway so a failing subscriber never stalls the bus.
func (b *Bus) Handle(name string, fn func(ctx context.Context, ev schemas.TurnEvent) error) {
	log := b.logger.With(zap.String("handler", name))
	b.router.AddNoPublisherHandler(name, TopicTurns, b.pubsub, func(msg *message.Message) error {
		var ev schemas.TurnEvent
		if err := jsonAPI.Unmarshal(msg.Payload, &ev); err != nil {
			log.Error("Dropping undecodable turn event.", zap.String("message_id", msg.UUID), zap.Error(err))
			return nil
		}
		if err := fn(msg.Context(), ev); err != nil {
			log.Warn("Turn event handler failed.",
				zap.String("type", string(ev.Type)),
				zap.Int("turn", ev.Turn),
				zap.Error(err),
			)
		}
		return nil
	})
}

// Record subscribes a recorder to the bus.
func (b *Bus) Record(name string, rec schemas.TurnRecorder) {
	b.Handle(name, rec.Record)
}

// Run starts the router and blocks until ctx is cancelled or Close is called.
func (b *Bus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Running is closed once every handler is subscribed.
func (b *Bus) Running() chan struct{} {
	return b.router.Running()
}

// Close stops the router and the pub/sub.
func (b *Bus) Close() error {
	routerErr := b.router.Close()
	if err := b.pubsub.Close(); err != nil {
		b.logger.Error("Failed to close pubsub", zap.Error(err))
	}
	return routerErr
}
