package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shiftoffer_backend/internal/models"
)

func TestBus_DeliversInOrderAndDrainsOnClose(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var (
		mu  sync.Mutex
		got []Type
	)
	bus.Subscribe("recorder", 4, func(ctx context.Context, evt Event) error {
		mu.Lock()
		got = append(got, evt.EventType())
		mu.Unlock()
		return nil
	})

	ctx := context.Background()
	bus.Publish(ctx, OfferPosted{OpenShiftID: "s1"})
	bus.Publish(ctx, WindowOpened{OpenShiftID: "s1"})
	bus.Publish(ctx, OfferAccepted{OpenShiftID: "s1"})
	bus.Publish(ctx, ShiftClosed{OpenShiftID: "s1", Status: models.OpenShiftStatusFilled})
	bus.Close()

	assert.Equal(t, []Type{TypeOfferPosted, TypeWindowOpened, TypeOfferAccepted, TypeShiftClosed}, got)
}

func TestBus_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var calls int
	bus.Subscribe("failing", 1, func(ctx context.Context, evt Event) error {
		return errors.New("audit store down")
	})
	bus.Subscribe("panicking", 1, func(ctx context.Context, evt Event) error {
		panic("boom")
	})
	bus.Subscribe("counting", 1, func(ctx context.Context, evt Event) error {
		calls++
		return nil
	})

	bus.Publish(context.Background(), OfferDeclined{OpenShiftID: "s1"})
	bus.Publish(context.Background(), OfferDeclined{OpenShiftID: "s1"})
	bus.Close()

	assert.Equal(t, 2, calls)
}

func TestBus_PublishAfterCloseIsDropped(t *testing.T) {
	bus := NewBus(zap.NewNop())
	var calls int
	bus.Subscribe("counting", 1, func(ctx context.Context, evt Event) error {
		calls++
		return nil
	})
	bus.Close()

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), OfferPosted{OpenShiftID: "s1"})
	})
	assert.Zero(t, calls)
}

type fakeAMQP struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (f *fakeAMQP) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func TestAMQPForwarder_PublishesEnvelope(t *testing.T) {
	pub := &fakeAMQP{}
	fwd := &AMQPForwarder{ch: pub, exchange: "shift_offers", logger: zap.NewNop()}
	at := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	err := fwd.Handle(context.Background(), OfferAccepted{
		OpenShiftID: "s1", QueueEntryID: "e1", UserID: "u1", OccurredAt: at,
	})
	require.NoError(t, err)

	assert.Equal(t, "shift_offers", pub.exchange)
	assert.Equal(t, "open_shift.offer_accepted", pub.key)
	assert.Equal(t, "application/json", pub.msg.ContentType)

	var body map[string]any
	require.NoError(t, json.Unmarshal(pub.msg.Body, &body))
	assert.Equal(t, "offer_accepted", body["type"])
	assert.Equal(t, "s1", body["open_shift_id"])
	payload := body["payload"].(map[string]any)
	assert.Equal(t, "u1", payload["user_id"])
}

func TestAMQPForwarder_ReturnsPublishError(t *testing.T) {
	fwd := &AMQPForwarder{ch: &fakeAMQP{err: errors.New("channel closed")}, exchange: "x", logger: zap.NewNop()}

	err := fwd.Handle(context.Background(), OfferPosted{OpenShiftID: "s1"})
	assert.ErrorContains(t, err, "channel closed")
}
