package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	"github.com/aleksandr-gorokhov/komprender/internal/consume"
	"github.com/aleksandr-gorokhov/komprender/internal/logging"
)

// SaramaDriver is the sarama backed Adapter. Every handle it returns owns a
// fresh sarama client, so handles never share state across sessions.
type SaramaDriver struct {
	cfg Config
	sc  *sarama.Config
}

func (d *SaramaDriver) Configure(config Config) error {
	config.ApplyDefaults()
	if len(config.Brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	sc, err := config.saramaConfig()
	if err != nil {
		return err
	}
	d.cfg, d.sc = config, sc
	return nil
}

func (d *SaramaDriver) Ping(ctx context.Context) error {
	_, err := callCtx(ctx, func() (struct{}, error) {
		cl, err := sarama.NewClient(d.cfg.Brokers, d.sc)
		if err != nil {
			return struct{}{}, err
		}
		defer cl.Close()
		return struct{}{}, cl.RefreshMetadata()
	})
	return err
}

func (d *SaramaDriver) NewConsumer(groupID string) (consume.ConsumerHandle, error) {
	cl, err := sarama.NewClient(d.cfg.Brokers, d.sc)
	if err != nil {
		return nil, err
	}
	group, err := sarama.NewConsumerGroupFromClient(groupID, cl)
	if err != nil {
		_ = cl.Close()
		return nil, err
	}
	return newGroupConsumer(groupID, cl, group), nil
}

func (d *SaramaDriver) NewMetadataClient() (consume.MetadataHandle, error) {
	cl, err := sarama.NewClient(d.cfg.Brokers, d.sc)
	if err != nil {
		return nil, err
	}
	return newMetadataClient(cl, d.cfg.MetadataTimeout), nil
}

func (d *SaramaDriver) NewAdmin() (TopicAdmin, error) {
	cl, err := sarama.NewClient(d.cfg.Brokers, d.sc)
	if err != nil {
		return nil, err
	}
	ca, err := sarama.NewClusterAdminFromClient(cl)
	if err != nil {
		_ = cl.Close()
		return nil, err
	}
	return newAdmin(cl, ca, d.cfg.MetadataTimeout), nil
}

func (d *SaramaDriver) NewProducer() (MessageProducer, error) {
	cl, err := sarama.NewClient(d.cfg.Brokers, d.sc)
	if err != nil {
		return nil, err
	}
	p, err := sarama.NewSyncProducerFromClient(cl)
	if err != nil {
		_ = cl.Close()
		return nil, err
	}
	return newProducer(p, cl), nil
}

// Close is a no-op: handles are closed by their owners.
func (d *SaramaDriver) Close() error { return nil }

// ---------------------------------------------------------------------------
// consumer group handle
// ---------------------------------------------------------------------------

// GroupConsumer runs a single Consume round of a throwaway consumer group.
// Setup publishes the assignment and then blocks until the caller's offset
// plan has been applied, so no message is delivered from an unplanned
// position.
type GroupConsumer struct {
	groupID string
	client  sarama.Client
	group   sarama.ConsumerGroup
	log     *slog.Logger

	msgs     chan *consume.Message
	errs     chan error
	assigned chan []int32
	plan     chan consume.OffsetPlan
	seeked   chan error

	mu         sync.Mutex
	topic      string
	cancel     context.CancelFunc
	stopped    chan struct{}
	consumeErr error

	closeOnce sync.Once
	closeErr  error
}

func newGroupConsumer(groupID string, client sarama.Client, group sarama.ConsumerGroup) *GroupConsumer {
	g := &GroupConsumer{
		groupID:  groupID,
		client:   client,
		group:    group,
		log:      logging.Component("kafka").With("group", groupID),
		msgs:     make(chan *consume.Message),
		errs:     make(chan error, 1),
		assigned: make(chan []int32, 1),
		plan:     make(chan consume.OffsetPlan, 1),
		seeked:   make(chan error, 1),
		stopped:  make(chan struct{}),
	}
	go g.drainErrors()
	return g
}

func (g *GroupConsumer) Subscribe(ctx context.Context, topic string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.topic != "" {
		return fmt.Errorf("kafka: group %s already subscribed to %q", g.groupID, g.topic)
	}
	parts, err := callCtx(ctx, func() ([]int32, error) { return g.client.Partitions(topic) })
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return fmt.Errorf("kafka: topic %q has no partitions", topic)
	}

	cctx, cancel := context.WithCancel(context.Background())
	g.topic, g.cancel = topic, cancel
	go g.run(cctx, topic)
	return nil
}

func (g *GroupConsumer) run(ctx context.Context, topic string) {
	defer close(g.msgs)
	defer close(g.stopped)

	err := g.group.Consume(ctx, []string{topic}, &groupHandler{g: g, topic: topic})
	if err != nil && ctx.Err() == nil {
		g.log.Error("consume round ended", "topic", topic, "err", err)
		g.mu.Lock()
		g.consumeErr = err
		g.mu.Unlock()
		g.report(err)
	}
}

func (g *GroupConsumer) WaitAssignment(ctx context.Context) ([]int32, error) {
	select {
	case parts := <-g.assigned:
		return parts, nil
	case <-g.stopped:
		g.mu.Lock()
		err := g.consumeErr
		g.mu.Unlock()
		if err == nil {
			err = errors.New("kafka: consumer stopped before assignment")
		}
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *GroupConsumer) Seek(ctx context.Context, plan consume.OffsetPlan) error {
	select {
	case g.plan <- plan:
	default:
		return errors.New("kafka: offset plan already applied")
	}
	select {
	case err := <-g.seeked:
		return err
	case <-g.stopped:
		return errors.New("kafka: consumer stopped before seek")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *GroupConsumer) Messages() <-chan *consume.Message { return g.msgs }
func (g *GroupConsumer) Errors() <-chan error              { return g.errs }

func (g *GroupConsumer) Close() error {
	g.closeOnce.Do(func() {
		g.mu.Lock()
		cancel, started := g.cancel, g.topic != ""
		g.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if err := g.group.Close(); err != nil {
			g.closeErr = err
		}
		if started {
			<-g.stopped
		}
		if err := g.client.Close(); err != nil && g.closeErr == nil {
			g.closeErr = err
		}
	})
	return g.closeErr
}

func (g *GroupConsumer) drainErrors() {
	for err := range g.group.Errors() {
		if IsFatal(err) {
			g.report(err)
			continue
		}
		g.log.Warn("recoverable consumer error", "err", err)
	}
}

// report keeps the first fatal error; later ones are logged only.
func (g *GroupConsumer) report(err error) {
	select {
	case g.errs <- err:
	default:
		g.log.Warn("dropping additional consumer error", "err", err)
	}
}

// apply resolves symbolic offsets and positions every claimed partition.
func (g *GroupConsumer) apply(sess sarama.ConsumerGroupSession, topic string, plan consume.OffsetPlan) error {
	for _, p := range sess.Claims()[topic] {
		off, ok := plan[p]
		if !ok {
			continue
		}
		var next int64
		switch off.Kind {
		case consume.OffsetBeginning:
			v, err := g.client.GetOffset(topic, p, sarama.OffsetOldest)
			if err != nil {
				return fmt.Errorf("partition %d: %w", p, err)
			}
			next = v
		case consume.OffsetEnd:
			v, err := g.client.GetOffset(topic, p, sarama.OffsetNewest)
			if err != nil {
				return fmt.Errorf("partition %d: %w", p, err)
			}
			next = v
		default:
			next = off.Value
		}
		// The group is new, so its stored offset is -1 and any mark moves it.
		sess.MarkOffset(topic, p, next, "")
		g.log.Debug("partition positioned", "topic", topic, "partition", p, "offset", next)
	}
	return nil
}

// groupHandler serves exactly one Consume round; a rebalance ends the
// round and with it the stream.
type groupHandler struct {
	g     *GroupConsumer
	topic string
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	select {
	case h.g.assigned <- sess.Claims()[h.topic]:
	default:
	}

	select {
	case plan := <-h.g.plan:
		err := h.g.apply(sess, h.topic, plan)
		h.g.seeked <- err
		return err
	case <-sess.Context().Done():
		return sess.Context().Err()
	}
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.g.log.Debug("consumer group session cleanup", "topic", h.topic)
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-sess.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			m := &consume.Message{
				Topic:     msg.Topic,
				Partition: msg.Partition,
				Offset:    msg.Offset,
				Key:       msg.Key,
				Value:     msg.Value,
				Timestamp: msg.Timestamp,
			}
			select {
			case h.g.msgs <- m:
			case <-sess.Context().Done():
				return nil
			}
		}
	}
}
