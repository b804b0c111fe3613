package decode

import (
	"context"
	"errors"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

// payloadJSON keeps numbers as text so integers survive exactly.
var payloadJSON = jsoniter.Config{
	EscapeHTML:  true,
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

// Decoder decodes a schema registry framed payload into a native value.
type Decoder interface {
	Decode(ctx context.Context, payload []byte) (any, error)
}

// DecoderSource yields the decoder for the currently connected registry, if
// any.
type DecoderSource interface {
	CurrentDecoder() (Decoder, bool)
}

type registryStrategy struct {
	src DecoderSource
}

// Registry decodes schema registry binary payloads. It skips when no
// registry is configured or the payload is not registry framed.
func Registry(src DecoderSource) Strategy { return registryStrategy{src: src} }

func (registryStrategy) Name() string { return "schema_registry" }

func (s registryStrategy) Decode(ctx context.Context, payload []byte) (any, Outcome, error) {
	if s.src == nil {
		return nil, Skipped, nil
	}
	dec, ok := s.src.CurrentDecoder()
	if !ok || dec == nil {
		return nil, Skipped, nil
	}
	native, err := dec.Decode(ctx, payload)
	if err != nil {
		return nil, Skipped, err
	}
	v, err := FromNative(native)
	if err != nil {
		return nil, Skipped, err
	}
	return v, Decoded, nil
}

type jsonStrategy struct{}

// JSON parses strict UTF-8 JSON documents.
func JSON() Strategy { return jsonStrategy{} }

func (jsonStrategy) Name() string { return "json" }

func (jsonStrategy) Decode(_ context.Context, payload []byte) (any, Outcome, error) {
	if !utf8.Valid(payload) {
		return nil, Skipped, nil
	}
	var v any
	if err := payloadJSON.Unmarshal(payload, &v); err != nil {
		return nil, Skipped, err
	}
	v, err := normalizeNumbers(v)
	if err != nil {
		return nil, Skipped, err
	}
	return v, Decoded, nil
}

var errNotUTF8 = errors.New("payload is not valid UTF-8")

type textStrategy struct{}

// Text accepts any valid UTF-8 payload as an opaque string and fails
// everything else.
func Text() Strategy { return textStrategy{} }

func (textStrategy) Name() string { return "text" }

func (textStrategy) Decode(_ context.Context, payload []byte) (any, Outcome, error) {
	if !utf8.Valid(payload) {
		return nil, Failed, errNotUTF8
	}
	return string(payload), Decoded, nil
}
