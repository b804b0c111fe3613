// Package schemaregistry connects to a Confluent compatible schema registry
// and turns registry framed Avro payloads into native values and back.
package schemaregistry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/linkedin/goavro/v2"
	"github.com/twmb/franz-go/pkg/sr"

	"github.com/aleksandr-gorokhov/komprender/internal/decode"
	"github.com/aleksandr-gorokhov/komprender/internal/logging"
)

const DefaultTimeout = 5 * time.Second

var ErrNotConnected = errors.New("schema registry not connected")

// Registry holds at most one registry connection. It is written on connect
// and read by every decode.
type Registry struct {
	timeout time.Duration

	mu   sync.RWMutex
	conn *connection
}

func New(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{timeout: timeout}
}

// Connect validates url by listing subjects and keeps the client. An empty
// url means no registry: it reports false and no error.
func (r *Registry) Connect(ctx context.Context, url string) (bool, error) {
	if url == "" {
		return false, nil
	}
	cl, err := sr.NewClient(
		sr.URLs(url),
		sr.HTTPClient(&http.Client{Timeout: r.timeout}),
	)
	if err != nil {
		return false, err
	}
	if _, err := cl.Subjects(ctx); err != nil {
		return false, fmt.Errorf("could not connect to schema registry %s: %w", url, err)
	}

	r.mu.Lock()
	r.conn = &connection{url: url, client: cl}
	r.mu.Unlock()
	logging.Component("schemaregistry").Info("connected", "url", url)
	return true, nil
}

func (r *Registry) Disconnect() {
	r.mu.Lock()
	r.conn = nil
	r.mu.Unlock()
}

func (r *Registry) URL() string {
	if c := r.current(); c != nil {
		return c.url
	}
	return ""
}

func (r *Registry) current() *connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn
}

func (r *Registry) Subjects(ctx context.Context) ([]string, error) {
	c := r.current()
	if c == nil {
		return nil, ErrNotConnected
	}
	return c.client.Subjects(ctx)
}

// Schema returns the text of the latest version of subject.
func (r *Registry) Schema(ctx context.Context, subject string) (string, error) {
	c := r.current()
	if c == nil {
		return "", ErrNotConnected
	}
	ss, err := c.client.SchemaByVersion(ctx, subject, -1)
	if err != nil {
		return "", err
	}
	return ss.Schema.Schema, nil
}

// CurrentDecoder returns a decoder bound to the current connection.
func (r *Registry) CurrentDecoder() (decode.Decoder, bool) {
	c := r.current()
	if c == nil {
		return nil, false
	}
	return c, true
}

// Encode encodes a JSON object with the latest schema of subject and frames
// it with the registry header.
func (r *Registry) Encode(ctx context.Context, subject string, payload []byte) ([]byte, error) {
	c := r.current()
	if c == nil {
		return nil, ErrNotConnected
	}
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' || !jsoniter.Valid(trimmed) {
		return nil, errors.New("payload must be a JSON object")
	}

	ss, err := c.client.SchemaByVersion(ctx, subject, -1)
	if err != nil {
		return nil, err
	}
	codec, err := c.codec(ss.ID, ss.Schema)
	if err != nil {
		return nil, err
	}
	native, _, err := codec.NativeFromTextual(trimmed)
	if err != nil {
		return nil, fmt.Errorf("payload does not match %s: %w", subject, err)
	}

	var h sr.ConfluentHeader
	out, err := h.AppendEncode(nil, ss.ID, nil)
	if err != nil {
		return nil, err
	}
	return codec.BinaryFromNative(out, native)
}

// connection is one connected registry with its compiled codecs. Schema ids
// are immutable, so codecs are cached for the life of the connection.
type connection struct {
	url    string
	client *sr.Client
	codecs sync.Map // int -> *goavro.Codec
}

func (c *connection) Decode(ctx context.Context, payload []byte) (any, error) {
	var h sr.ConfluentHeader
	id, body, err := h.DecodeID(payload)
	if err != nil {
		return nil, err
	}
	codec, err := c.codecByID(ctx, id)
	if err != nil {
		return nil, err
	}
	native, rest, err := codec.NativeFromBinary(body)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("schema %d: %d trailing bytes", id, len(rest))
	}
	return native, nil
}

func (c *connection) codecByID(ctx context.Context, id int) (*goavro.Codec, error) {
	if v, ok := c.codecs.Load(id); ok {
		return v.(*goavro.Codec), nil
	}
	s, err := c.client.SchemaByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.codec(id, s)
}

func (c *connection) codec(id int, s sr.Schema) (*goavro.Codec, error) {
	if v, ok := c.codecs.Load(id); ok {
		return v.(*goavro.Codec), nil
	}
	if s.Type != sr.TypeAvro {
		return nil, fmt.Errorf("schema %d is %s, not avro", id, s.Type)
	}
	if len(s.References) > 0 {
		return nil, fmt.Errorf("schema %d uses references, which are not supported", id)
	}
	codec, err := goavro.NewCodec(s.Schema)
	if err != nil {
		return nil, fmt.Errorf("schema %d: %w", id, err)
	}
	v, _ := c.codecs.LoadOrStore(id, codec)
	return v.(*goavro.Codec), nil
}
