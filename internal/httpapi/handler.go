package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/IBM/sarama"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/aleksandr-gorokhov/komprender/internal/connection"
	"github.com/aleksandr-gorokhov/komprender/internal/consume"
	"github.com/aleksandr-gorokhov/komprender/internal/produce"
	"github.com/aleksandr-gorokhov/komprender/internal/schemaregistry"
	"github.com/aleksandr-gorokhov/komprender/source/kafka"
)

type Connections interface {
	Connect(ctx context.Context, req connection.Request) error
	Disconnect() error
	Saved() ([]connection.Item, error)
	Adapter() (kafka.Adapter, error)
}

type Schemas interface {
	Subjects(ctx context.Context) ([]string, error)
	Schema(ctx context.Context, subject string) (string, error)
}

type Consumer interface {
	StartConsumption(ctx context.Context, topic string, mode consume.Mode, sink consume.Sink) error
	StopAllConsumption()
}

type Producer interface {
	ProduceJSON(ctx context.Context, topic, key string, payload []byte) (produce.Result, error)
	ProduceAvro(ctx context.Context, topic, key string, payload []byte, subject string) (produce.Result, error)
}

// Deps are the services the API fronts. Events receives the records of
// sessions started over REST; WS serves /ws.
type Deps struct {
	Connections Connections
	Schemas     Schemas
	Consumer    Consumer
	Producer    Producer
	Events      consume.Sink
	WS          http.Handler
}

type Handler struct {
	deps     Deps
	base     context.Context
	validate *validator.Validate
}

// NewRouter builds the API. Sessions started through POST /api/consume run
// under base and outlive the request.
func NewRouter(base context.Context, deps Deps) http.Handler {
	h := &Handler{deps: deps, base: base, validate: validator.New()}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/connect", h.connect).Methods(http.MethodPost)
	api.HandleFunc("/disconnect", h.disconnect).Methods(http.MethodPost)
	api.HandleFunc("/connections", h.connections).Methods(http.MethodGet)

	api.HandleFunc("/topics", h.listTopics).Methods(http.MethodGet)
	api.HandleFunc("/topics", h.createTopic).Methods(http.MethodPost)
	api.HandleFunc("/topics", h.deleteTopics).Methods(http.MethodDelete)
	api.HandleFunc("/topics/{name}", h.describeTopic).Methods(http.MethodGet)
	api.HandleFunc("/topics/{name}/messages", h.produce).Methods(http.MethodPost)

	api.HandleFunc("/consume", h.startConsume).Methods(http.MethodPost)
	api.HandleFunc("/consume/stop", h.stopConsume).Methods(http.MethodPost)

	api.HandleFunc("/schemas", h.subjects).Methods(http.MethodGet)
	api.HandleFunc("/schemas/{subject}", h.schema).Methods(http.MethodGet)

	if deps.WS != nil {
		r.Handle("/ws", deps.WS).Methods(http.MethodGet)
	}
	return withRequestID(r)
}

func (h *Handler) ok(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger(r).Error("request failed", "err", err)
	} else {
		logger(r).Debug("request rejected", "err", err)
	}
	writeJSON(w, status, Response{Error: &ErrorDetail{Code: code, Message: err.Error()}})
}

var errBadRequest = errors.New("bad request")

func classify(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs), errors.Is(err, errBadRequest), errors.Is(err, produce.ErrInvalidPayload):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, consume.ErrConnectionNotEstablished), errors.Is(err, schemaregistry.ErrNotConnected):
		return http.StatusConflict, "not_connected"
	case errors.Is(err, sarama.ErrUnknownTopicOrPartition):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, sarama.ErrTopicAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, consume.ErrMetadataTimeout):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// decode reads and validates a JSON body into v.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		return errors.Join(errBadRequest, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return h.validate.Struct(v)
}
