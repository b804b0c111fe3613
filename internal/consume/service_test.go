package consume

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksandr-gorokhov/komprender/internal/decode"
	"github.com/aleksandr-gorokhov/komprender/internal/logging"
)

type collector struct {
	mu      sync.Mutex
	records []decode.Record
	events  []string
	err     error
}

func (c *collector) Emit(event string, rec decode.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	c.records = append(c.records, rec)
	return c.err
}

func (c *collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func jsonMessages(n int, partitions int32) []*Message {
	out := make([]*Message, n)
	for i := range out {
		out[i] = &Message{
			Topic:     "orders",
			Partition: int32(i) % partitions,
			Offset:    int64(i),
			Key:       []byte(fmt.Sprintf("k%d", i)),
			Value:     []byte(fmt.Sprintf(`{"seq":%d}`, i)),
		}
	}
	return out
}

func newTestService(p *fakeProvider) *Service {
	return NewService(fakeSource{provider: p}, nil, nil, Options{
		AssignmentTimeout: time.Second,
		MetadataTimeout:   time.Second,
	})
}

func TestStartConsumption_FromBeginningCapsAt100(t *testing.T) {
	c := newFakeConsumer(0, 1, 2)
	for _, m := range jsonMessages(150, 3) {
		c.msgs <- m
	}
	p := &fakeProvider{consumer: c}
	svc := newTestService(p)
	sink := &collector{}

	err := svc.StartConsumption(context.Background(), "orders", FromBeginning, sink)
	require.NoError(t, err)

	assert.Equal(t, 100, sink.Len())
	assert.Equal(t, EventMessageReceived, sink.events[0])
	assert.Equal(t, OffsetPlan{0: Beginning(), 1: Beginning(), 2: Beginning()}, c.Plan())
	assert.True(t, c.Closed())
	assert.Equal(t, 0, svc.Sessions().Active(), "completed session is removed")
	require.Len(t, p.groupIDs, 1)
	assert.True(t, strings.HasPrefix(p.groupIDs[0], DefaultGroupPrefix+"-"))
}

func TestStartConsumption_FewerThanCapCompletesWhenStreamEnds(t *testing.T) {
	c := newFakeConsumer(0)
	for _, m := range jsonMessages(10, 1) {
		c.msgs <- m
	}
	close(c.msgs)
	sink := &collector{}

	err := newTestService(&fakeProvider{consumer: c}).StartConsumption(context.Background(), "orders", ParseMode("bogus"), sink)
	require.NoError(t, err)
	assert.Equal(t, 10, sink.Len())
}

func TestStartConsumption_LastNHasNoCap(t *testing.T) {
	c := newFakeConsumer(0, 1, 2)
	for _, m := range jsonMessages(150, 3) {
		c.msgs <- m
	}
	close(c.msgs)
	meta := &fakeMeta{wm: map[int32]Watermark{0: {0, 40}, 1: {0, 40}, 2: {0, 40}}}
	sink := &collector{}

	err := newTestService(&fakeProvider{consumer: c, meta: meta}).StartConsumption(context.Background(), "orders", LastN, sink)
	require.NoError(t, err)
	assert.Equal(t, 150, sink.Len())
	assert.Equal(t, OffsetPlan{0: At(7), 1: At(7), 2: At(7)}, c.Plan())
}

func TestStartConsumption_DropsUndecodableMessages(t *testing.T) {
	c := newFakeConsumer(0)
	c.msgs <- &Message{Offset: 0, Value: []byte(`{"id":1}`)}
	c.msgs <- &Message{Offset: 1, Value: []byte{0xff, 0xfe}}
	c.msgs <- &Message{Offset: 2, Value: []byte("plain text")}
	close(c.msgs)
	sink := &collector{}

	err := newTestService(&fakeProvider{consumer: c}).StartConsumption(context.Background(), "orders", FromNow, sink)
	require.NoError(t, err)
	require.Equal(t, 2, sink.Len())
	assert.Equal(t, map[string]any{"id": int64(1)}, sink.records[0].Value)
	assert.Equal(t, "plain text", sink.records[1].Value)
	assert.Equal(t, int64(2), sink.records[1].Offset)
}

func TestStartConsumption_SinkErrorsAreSwallowed(t *testing.T) {
	c := newFakeConsumer(0)
	for _, m := range jsonMessages(3, 1) {
		c.msgs <- m
	}
	close(c.msgs)
	sink := &collector{err: errors.New("ui gone")}

	err := newTestService(&fakeProvider{consumer: c}).StartConsumption(context.Background(), "orders", FromNow, sink)
	require.NoError(t, err)
	assert.Equal(t, 3, sink.Len())
}

func TestStartConsumption_NotConnected(t *testing.T) {
	svc := NewService(fakeSource{err: ErrConnectionNotEstablished}, nil, nil, Options{})
	err := svc.StartConsumption(context.Background(), "orders", FromBeginning, nil)
	assert.ErrorIs(t, err, ErrConnectionNotEstablished)

	svc = NewService(nil, nil, nil, Options{})
	err = svc.StartConsumption(context.Background(), "orders", FromBeginning, nil)
	assert.ErrorIs(t, err, ErrConnectionNotEstablished)
}

func TestStartConsumption_StageErrors(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*fakeConsumer)
		stage Stage
		kind  error
	}{
		{"subscribe", func(c *fakeConsumer) { c.subErr = errors.New("unknown topic") }, StageSubscribe, ErrSubscription},
		{"assignment timeout", func(c *fakeConsumer) { c.assignErr = context.DeadlineExceeded }, StageMetadata, ErrMetadataTimeout},
		{"empty assignment", func(c *fakeConsumer) { c.partitions = nil }, StageMetadata, ErrEmptyAssignment},
		{"seek", func(c *fakeConsumer) { c.seekErr = errors.New("offset out of range") }, StageSeek, ErrSeek},
		{"poll", func(c *fakeConsumer) { c.errs <- errors.New("closed client") }, StagePoll, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newFakeConsumer(0)
			tc.setup(c)
			sink := &collector{}

			err := newTestService(&fakeProvider{consumer: c}).StartConsumption(context.Background(), "orders", FromBeginning, sink)
			require.Error(t, err)

			var se *StageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.stage, se.Stage)
			if tc.kind != nil {
				assert.ErrorIs(t, err, tc.kind)
			}
			assert.Zero(t, sink.Len())
			assert.True(t, c.Closed())
		})
	}
}

func TestStopAll_CancelsStreamingSession(t *testing.T) {
	c := newFakeConsumer(0)
	svc := newTestService(&fakeProvider{consumer: c})
	sink := &collector{}

	done := make(chan error, 1)
	go func() { done <- svc.StartConsumption(context.Background(), "orders", FromNow, sink) }()

	select {
	case <-c.seeked:
	case <-time.After(2 * time.Second):
		t.Fatal("session never reached seek")
	}
	require.Equal(t, 1, svc.Sessions().Active())

	svc.StopAllConsumption()
	for _, m := range jsonMessages(5, 1) {
		c.msgs <- m
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	assert.Zero(t, sink.Len(), "nothing emitted after stop")
	assert.True(t, c.Closed())

	svc.StopAllConsumption()
	assert.Equal(t, 0, svc.Sessions().Active())
}

func TestStartConsumption_ContextCancelEndsSession(t *testing.T) {
	c := newFakeConsumer(0)
	svc := newTestService(&fakeProvider{consumer: c})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- svc.StartConsumption(ctx, "orders", FromNow, nil) }()
	<-c.seeked
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session ignored context cancellation")
	}
}

func TestSession_RunsOnce(t *testing.T) {
	consumer := newFakeConsumer(0)
	for _, m := range jsonMessages(3, 1) {
		consumer.msgs <- m
	}
	close(consumer.msgs)
	sink := &collector{}
	sess := &Session{
		ID:                "once",
		Topic:             "orders",
		Mode:              FromBeginning,
		token:             NewToken(),
		consumer:          consumer,
		pipeline:          decode.Default(nil),
		sink:              sink,
		maxMessages:       DefaultMaxMessages,
		assignmentTimeout: time.Second,
		log:               logging.Component("consume"),
	}

	const runners = 8
	errs := make(chan error, runners)
	var wg sync.WaitGroup
	for i := 0; i < runners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- sess.Run(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	var ok, rejected int
	for err := range errs {
		if errors.Is(err, ErrSessionRan) {
			rejected++
			continue
		}
		require.NoError(t, err)
		ok++
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, runners-1, rejected)
	assert.Equal(t, 1, consumer.Subscribes())
	assert.Equal(t, 3, sink.Len())
	assert.Equal(t, StateCompleted, sess.State())
	assert.ErrorIs(t, sess.Run(context.Background()), ErrSessionRan)
}
