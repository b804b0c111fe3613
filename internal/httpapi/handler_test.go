package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksandr-gorokhov/komprender/internal/connection"
	"github.com/aleksandr-gorokhov/komprender/internal/consume"
	"github.com/aleksandr-gorokhov/komprender/internal/produce"
	"github.com/aleksandr-gorokhov/komprender/internal/schemaregistry"
	"github.com/aleksandr-gorokhov/komprender/source/kafka"
)

type fakeAdmin struct {
	filter  string
	created []kafka.TopicSpec
	deleted []string
	closed  bool
}

func (a *fakeAdmin) ListTopics(_ context.Context, filter string) ([]kafka.TopicSummary, error) {
	a.filter = filter
	return []kafka.TopicSummary{{Name: "orders", Partitions: 3, Messages: 12}}, nil
}

func (a *fakeAdmin) DescribeTopic(_ context.Context, name string) (kafka.TopicDetail, error) {
	if name != "orders" {
		return kafka.TopicDetail{}, sarama.ErrUnknownTopicOrPartition
	}
	return kafka.TopicDetail{Name: name, Partitions: []kafka.PartitionInfo{{ID: 0, Low: 5, High: 42, Messages: 37}}}, nil
}

func (a *fakeAdmin) CreateTopic(_ context.Context, spec kafka.TopicSpec) error {
	a.created = append(a.created, spec)
	return nil
}

func (a *fakeAdmin) DeleteTopics(_ context.Context, names []string) error {
	a.deleted = append(a.deleted, names...)
	return nil
}

func (a *fakeAdmin) Close() error { a.closed = true; return nil }

type fakeAdapter struct {
	kafka.Adapter
	admin *fakeAdmin
}

func (f *fakeAdapter) NewAdmin() (kafka.TopicAdmin, error) { return f.admin, nil }

type fakeConnections struct {
	adapter   *fakeAdapter
	connected []connection.Request
}

func (f *fakeConnections) Connect(_ context.Context, req connection.Request) error {
	f.connected = append(f.connected, req)
	return nil
}
func (f *fakeConnections) Disconnect() error { f.adapter = nil; return nil }
func (f *fakeConnections) Saved() ([]connection.Item, error) {
	return []connection.Item{{Name: "local", Host: "localhost:9092"}}, nil
}
func (f *fakeConnections) Adapter() (kafka.Adapter, error) {
	if f.adapter == nil {
		return nil, consume.ErrConnectionNotEstablished
	}
	return f.adapter, nil
}

type started struct {
	topic string
	mode  consume.Mode
}

type fakeConsumer struct {
	started chan started
	mu      sync.Mutex
	stops   int
}

func (f *fakeConsumer) StartConsumption(_ context.Context, topic string, mode consume.Mode, _ consume.Sink) error {
	f.started <- started{topic, mode}
	return nil
}

func (f *fakeConsumer) StopAllConsumption() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

type fakeProducer struct {
	format  string
	payload string
	subject string
}

func (f *fakeProducer) ProduceJSON(_ context.Context, _, _ string, payload []byte) (produce.Result, error) {
	f.format, f.payload = "json", string(payload)
	return produce.Result{Partition: 1, Offset: 10}, nil
}

func (f *fakeProducer) ProduceAvro(_ context.Context, _, _ string, payload []byte, subject string) (produce.Result, error) {
	f.format, f.payload, f.subject = "avro", string(payload), subject
	return produce.Result{Partition: 0, Offset: 3}, nil
}

type fakeSchemas struct{}

func (fakeSchemas) Subjects(context.Context) ([]string, error) { return []string{"orders-value"}, nil }
func (fakeSchemas) Schema(_ context.Context, subject string) (string, error) {
	if subject != "orders-value" {
		return "", schemaregistry.ErrNotConnected
	}
	return `{"type":"string"}`, nil
}

type fixture struct {
	router   http.Handler
	conns    *fakeConnections
	admin    *fakeAdmin
	consumer *fakeConsumer
	producer *fakeProducer
}

func newFixture(connected bool) *fixture {
	f := &fixture{
		admin:    &fakeAdmin{},
		consumer: &fakeConsumer{started: make(chan started, 1)},
		producer: &fakeProducer{},
	}
	f.conns = &fakeConnections{}
	if connected {
		f.conns.adapter = &fakeAdapter{admin: f.admin}
	}
	f.router = NewRouter(context.Background(), Deps{
		Connections: f.conns,
		Schemas:     fakeSchemas{},
		Consumer:    f.consumer,
		Producer:    f.producer,
		Events:      consume.SinkFunc(nil),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func TestConnect(t *testing.T) {
	f := newFixture(false)

	rec, resp := f.do(t, http.MethodPost, "/api/connect", `{"name":"local"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_request", resp.Error.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/connect", `{"name":"local","host":"localhost:9092","schema_registry":"not a url"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = f.do(t, http.MethodPost, "/api/connect", `{"name":"local","host":"localhost:9092"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, []connection.Request{{Name: "local", Host: "localhost:9092"}}, f.conns.connected)
}

func TestConnections(t *testing.T) {
	f := newFixture(false)
	rec, resp := f.do(t, http.MethodGet, "/api/connections", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{map[string]any{"name": "local", "host": "localhost:9092"}}, resp.Data)
}

func TestTopics_NotConnected(t *testing.T) {
	f := newFixture(false)
	rec, resp := f.do(t, http.MethodGet, "/api/topics", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_connected", resp.Error.Code)
	assert.False(t, resp.Success)
}

func TestTopics_List(t *testing.T) {
	f := newFixture(true)
	rec, resp := f.do(t, http.MethodGet, "/api/topics?filter=ord", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ord", f.admin.filter)
	assert.True(t, f.admin.closed)
	assert.Equal(t, []any{map[string]any{"name": "orders", "partitions": float64(3), "messages": float64(12)}}, resp.Data)
}

func TestTopics_Describe(t *testing.T) {
	f := newFixture(true)
	rec, _ := f.do(t, http.MethodGet, "/api/topics/orders", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp := f.do(t, http.MethodGet, "/api/topics/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", resp.Error.Code)
}

func TestTopics_CreateAndDelete(t *testing.T) {
	f := newFixture(true)

	rec, _ := f.do(t, http.MethodPost, "/api/topics", `{"name":"orders","partitions":0,"replication_factor":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/topics", `{"name":"orders","partitions":3,"replication_factor":1,"cleanup_policy":"Compact","retention_time":60000}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, f.admin.created, 1)
	assert.Equal(t, int64(60000), f.admin.created[0].RetentionMs)

	rec, _ = f.do(t, http.MethodDelete, "/api/topics", `{"topics":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodDelete, "/api/topics", `{"topics":["a","b"]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a", "b"}, f.admin.deleted)
}

func TestProduce(t *testing.T) {
	f := newFixture(true)

	rec, _ := f.do(t, http.MethodPost, "/api/topics/orders/messages", `{"payload":{"id":1},"format":"avro"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "avro needs a subject")

	rec, resp := f.do(t, http.MethodPost, "/api/topics/orders/messages", `{"key":"k","payload":{"id":1}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "json", f.producer.format)
	assert.Equal(t, `{"id":1}`, f.producer.payload)
	assert.Equal(t, map[string]any{"partition": float64(1), "offset": float64(10)}, resp.Data)

	rec, _ = f.do(t, http.MethodPost, "/api/topics/orders/messages", `{"payload":"{\"id\":2}","format":"avro","subject":"orders-value"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "avro", f.producer.format)
	assert.Equal(t, `{"id":2}`, f.producer.payload)
	assert.Equal(t, "orders-value", f.producer.subject)
}

func TestConsume_StartsInBackground(t *testing.T) {
	f := newFixture(true)

	rec, resp := f.do(t, http.MethodPost, "/api/consume", `{"topic":"orders","mode":"last"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, map[string]any{"topic": "orders", "mode": "last"}, resp.Data)

	select {
	case s := <-f.consumer.started:
		assert.Equal(t, started{"orders", consume.LastN}, s)
	case <-time.After(2 * time.Second):
		t.Fatal("session was not started")
	}

	rec, _ = f.do(t, http.MethodPost, "/api/consume/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	f.consumer.mu.Lock()
	assert.Equal(t, 1, f.consumer.stops)
	f.consumer.mu.Unlock()
}

func TestConsume_RequiresConnection(t *testing.T) {
	f := newFixture(false)
	rec, _ := f.do(t, http.MethodPost, "/api/consume", `{"topic":"orders"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, f.consumer.started)
}

func TestSchemas(t *testing.T) {
	f := newFixture(false)
	rec, resp := f.do(t, http.MethodGet, "/api/schemas", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"orders-value"}, resp.Data)

	rec, resp = f.do(t, http.MethodGet, "/api/schemas/orders-value", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"subject": "orders-value", "schema": `{"type":"string"}`}, resp.Data)
}

func TestRequestID(t *testing.T) {
	f := newFixture(false)

	req := httptest.NewRequest(http.MethodGet, "/api/connections", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/connections", nil))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}
