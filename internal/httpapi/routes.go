package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"github.com/aleksandr-gorokhov/komprender/internal/connection"
	"github.com/aleksandr-gorokhov/komprender/internal/consume"
	"github.com/aleksandr-gorokhov/komprender/source/kafka"
)

// ----- connections --------------------------------------------------------

func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	var req connection.Request
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.deps.Connections.Connect(r.Context(), req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, req)
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	h.deps.Consumer.StopAllConsumption()
	if err := h.deps.Connections.Disconnect(); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, nil)
}

func (h *Handler) connections(w http.ResponseWriter, r *http.Request) {
	items, err := h.deps.Connections.Saved()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []connection.Item{}
	}
	h.ok(w, http.StatusOK, items)
}

// ----- topics -------------------------------------------------------------

// withAdmin opens an admin client on the active connection for one call.
func (h *Handler) withAdmin(w http.ResponseWriter, r *http.Request, fn func(kafka.TopicAdmin) (any, error), status int) {
	adapter, err := h.deps.Connections.Adapter()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	admin, err := adapter.NewAdmin()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer func() {
		if err := admin.Close(); err != nil {
			logger(r).Warn("admin close", "err", err)
		}
	}()
	data, err := fn(admin)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, status, data)
}

func (h *Handler) listTopics(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")
	h.withAdmin(w, r, func(a kafka.TopicAdmin) (any, error) {
		topics, err := a.ListTopics(r.Context(), filter)
		if topics == nil {
			topics = []kafka.TopicSummary{}
		}
		return topics, err
	}, http.StatusOK)
}

func (h *Handler) describeTopic(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	h.withAdmin(w, r, func(a kafka.TopicAdmin) (any, error) {
		return a.DescribeTopic(r.Context(), name)
	}, http.StatusOK)
}

func (h *Handler) createTopic(w http.ResponseWriter, r *http.Request) {
	var spec kafka.TopicSpec
	if err := h.decode(w, r, &spec); err != nil {
		h.fail(w, r, err)
		return
	}
	h.withAdmin(w, r, func(a kafka.TopicAdmin) (any, error) {
		return spec, a.CreateTopic(r.Context(), spec)
	}, http.StatusCreated)
}

type deleteTopicsRequest struct {
	Topics []string `json:"topics" validate:"required,min=1,dive,required"`
}

func (h *Handler) deleteTopics(w http.ResponseWriter, r *http.Request) {
	var req deleteTopicsRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.withAdmin(w, r, func(a kafka.TopicAdmin) (any, error) {
		return req, a.DeleteTopics(r.Context(), req.Topics)
	}, http.StatusOK)
}

// ----- produce ------------------------------------------------------------

type produceRequest struct {
	Key     string              `json:"key"`
	Payload jsoniter.RawMessage `json:"payload" validate:"required"`
	Format  string              `json:"format" validate:"omitempty,oneof=json avro"`
	Subject string              `json:"subject" validate:"required_if=Format avro"`
}

func (h *Handler) produce(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["name"]
	var req produceRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	payload := []byte(req.Payload)
	// A JSON string payload carries the raw message text.
	var text string
	if err := json.Unmarshal(payload, &text); err == nil {
		payload = []byte(text)
	}

	var err error
	var res any
	if req.Format == "avro" {
		res, err = h.deps.Producer.ProduceAvro(r.Context(), topic, req.Key, payload, req.Subject)
	} else {
		res, err = h.deps.Producer.ProduceJSON(r.Context(), topic, req.Key, payload)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res)
}

// ----- consume ------------------------------------------------------------

type consumeRequest struct {
	Topic string `json:"topic" validate:"required"`
	Mode  string `json:"mode"`
}

// startConsume returns once the session is started; records arrive over /ws.
func (h *Handler) startConsume(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.deps.Connections.Adapter(); err != nil {
		h.fail(w, r, err)
		return
	}
	mode := consume.ParseMode(req.Mode)
	log := logger(r).With("topic", req.Topic, "mode", mode.String())

	go func() {
		if err := h.deps.Consumer.StartConsumption(h.base, req.Topic, mode, h.deps.Events); err != nil {
			log.Error("consumption failed", "err", err)
		}
	}()
	h.ok(w, http.StatusAccepted, map[string]string{"topic": req.Topic, "mode": mode.String()})
}

func (h *Handler) stopConsume(w http.ResponseWriter, _ *http.Request) {
	h.deps.Consumer.StopAllConsumption()
	h.ok(w, http.StatusOK, nil)
}

// ----- schemas ------------------------------------------------------------

func (h *Handler) subjects(w http.ResponseWriter, r *http.Request) {
	if h.deps.Schemas == nil {
		h.fail(w, r, errors.New("schema registry unavailable"))
		return
	}
	subjects, err := h.deps.Schemas.Subjects(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, subjects)
}

func (h *Handler) schema(w http.ResponseWriter, r *http.Request) {
	if h.deps.Schemas == nil {
		h.fail(w, r, errors.New("schema registry unavailable"))
		return
	}
	subject := mux.Vars(r)["subject"]
	schema, err := h.deps.Schemas.Schema(r.Context(), subject)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, map[string]string{"subject": subject, "schema": schema})
}
