// Package consume runs transient, cancellable read sessions against a topic.
// Each session uses a fresh consumer group that never commits, computes its
// starting offsets from the viewing mode, decodes every message and pushes
// the resulting records into a Sink.
package consume

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aleksandr-gorokhov/komprender/internal/decode"
	"github.com/aleksandr-gorokhov/komprender/internal/logging"
	"github.com/aleksandr-gorokhov/komprender/internal/telemetry"
)

const DefaultGroupPrefix = "komprender-consumer"

type Options struct {
	LastN             int
	MaxMessages       int
	MetadataTimeout   time.Duration
	AssignmentTimeout time.Duration
	GroupPrefix       string
}

func (o *Options) applyDefaults() {
	if o.LastN <= 0 {
		o.LastN = DefaultLastN
	}
	if o.MaxMessages <= 0 {
		o.MaxMessages = DefaultMaxMessages
	}
	if o.MetadataTimeout <= 0 {
		o.MetadataTimeout = DefaultMetadataTimeout
	}
	if o.AssignmentTimeout <= 0 {
		o.AssignmentTimeout = DefaultAssignmentTimeout
	}
	if o.GroupPrefix == "" {
		o.GroupPrefix = DefaultGroupPrefix
	}
}

// Service is the caller-facing entry point. It is safe for concurrent use.
type Service struct {
	providers ProviderSource
	sessions  *SessionManager
	pipeline  *decode.Pipeline
	opts      Options
}

// NewService wires a service. decoders may be nil when no schema registry is
// ever used; sessions may be nil to get a private manager.
func NewService(providers ProviderSource, decoders decode.DecoderSource, sessions *SessionManager, opts Options) *Service {
	opts.applyDefaults()
	if sessions == nil {
		sessions = NewSessionManager()
	}
	return &Service{
		providers: providers,
		sessions:  sessions,
		pipeline:  decode.Default(decoders),
		opts:      opts,
	}
}

func (s *Service) Sessions() *SessionManager { return s.sessions }

// StartConsumption runs one session and returns once it has ended. Records
// are observed through sink. A nil error means the session completed or was
// cancelled.
func (s *Service) StartConsumption(ctx context.Context, topic string, mode Mode, sink Sink) error {
	if s.providers == nil {
		return ErrConnectionNotEstablished
	}
	provider, err := s.providers.Provider()
	if err != nil {
		return err
	}
	if sink == nil {
		sink = SinkFunc(func(string, decode.Record) error { return nil })
	}

	groupID := fmt.Sprintf("%s-%s", s.opts.GroupPrefix, uuid.NewString())
	log := logging.Component("consume").With("topic", topic, "group", groupID, "mode", mode.String())

	token := NewToken()
	s.sessions.Register(groupID, token)
	defer s.sessions.Remove(groupID)

	consumer, err := provider.NewConsumer(groupID)
	if err != nil {
		return stageErr(StageSubscribe, ErrBrokerUnavailable, err)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			log.Warn("consumer close", "err", err)
		}
	}()

	var meta MetadataHandle
	if mode == LastN {
		if meta, err = provider.NewMetadataClient(); err != nil {
			return stageErr(StageMetadata, ErrBrokerUnavailable, err)
		}
		defer func() {
			if err := meta.Close(); err != nil {
				log.Warn("metadata client close", "err", err)
			}
		}()
	}

	sess := &Session{
		ID:                groupID,
		Topic:             topic,
		Mode:              mode,
		token:             token,
		consumer:          consumer,
		meta:              meta,
		pipeline:          s.pipeline,
		sink:              sink,
		resolver:          Resolver{LastN: s.opts.LastN, Timeout: s.opts.MetadataTimeout},
		maxMessages:       s.opts.MaxMessages,
		assignmentTimeout: s.opts.AssignmentTimeout,
		log:               log,
	}

	telemetry.SessionsActive.Inc()
	defer telemetry.SessionsActive.Dec()
	log.Info("session started")
	err = sess.Run(ctx)
	telemetry.SessionsTotal.WithLabelValues(mode.String(), sess.State().String()).Inc()
	return err
}

// StopAllConsumption signals every live session and returns immediately.
func (s *Service) StopAllConsumption() {
	if n := s.sessions.StopAll(); n > 0 {
		logging.Component("consume").Info("stop requested", "sessions", n)
	}
}
