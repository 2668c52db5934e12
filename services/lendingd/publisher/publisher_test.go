package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"lendcore/native/lending"
)

type published struct {
	subject string
	data    []byte
}

type fakeStream struct {
	mu   sync.Mutex
	msgs []published
	fail error
}

func (s *fakeStream) Publish(_ context.Context, subject string, payload []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	s.msgs = append(s.msgs, published{subject: subject, data: payload})
	return &jetstream.PubAck{Stream: "LENDING_EVENTS", Sequence: uint64(len(s.msgs))}, nil
}

func (s *fakeStream) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func supplyEvent() lending.Event {
	user := common.HexToAddress("0x0a11ce")
	return lending.Supply{
		Asset:      common.HexToAddress("0xd5dc"),
		User:       user,
		OnBehalfOf: user,
		Amount:     uint256.NewInt(10),
	}
}

func TestSubject(t *testing.T) {
	require.Equal(t, "lending.events.supply", Subject(lending.TypeSupply))
	require.Equal(t, "lending.events.reserve.configured", Subject(lending.TypeReserveConfigured))
	require.Equal(t, "lending.events.unknown", Subject(""))
}

func TestRunPublishesEnvelopes(t *testing.T) {
	stream := &fakeStream{}
	p := New(stream, 4, nil)
	p.Emit(supplyEvent())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return stream.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	stream.mu.Lock()
	msg := stream.msgs[0]
	stream.mu.Unlock()
	require.Equal(t, "lending.events.supply", msg.subject)

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.data, &env))
	require.Equal(t, lending.TypeSupply, env.Type)
	require.Equal(t, "10", env.Attributes["amount"])
	require.NotEmpty(t, env.ID)
}

func TestEmitDropsWhenQueueFull(t *testing.T) {
	p := New(&fakeStream{}, 1, nil)
	p.Emit(supplyEvent())
	p.Emit(supplyEvent())
	require.Equal(t, uint64(1), p.Dropped())
}

func TestRunSurvivesPublishErrors(t *testing.T) {
	stream := &fakeStream{fail: errors.New("nats down")}
	p := New(stream, 4, nil)
	p.Emit(supplyEvent())
	p.Emit(supplyEvent())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Run(ctx), context.DeadlineExceeded)
	require.Zero(t, stream.count())
}

func TestRunRequiresStream(t *testing.T) {
	require.Error(t, New(nil, 1, nil).Run(context.Background()))
}
