package sink

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aleksandr-gorokhov/komprender/internal/decode"
)

type recording struct {
	got    []decode.Record
	err    error
	closed bool
}

func (r *recording) Configure(any) error { return nil }
func (r *recording) Emit(_ string, rec decode.Record) error {
	r.got = append(r.got, rec)
	return r.err
}
func (r *recording) Close() error { r.closed = true; return nil }

func TestFanout_FailureDoesNotStopOthers(t *testing.T) {
	bad := &recording{err: errors.New("down")}
	good := &recording{}
	f := Fanout{bad, good}

	err := f.Emit("message_received", decode.Record{Offset: 3})
	assert.ErrorContains(t, err, "down")
	assert.Len(t, bad.got, 1)
	assert.Len(t, good.got, 1)

	assert.NoError(t, f.Close())
	assert.True(t, bad.closed)
	assert.True(t, good.closed)
}

func TestRegistry(t *testing.T) {
	Register("recording", func() Adapter { return &recording{} })

	a, err := NewAdapter("recording")
	assert.NoError(t, err)
	assert.IsType(t, &recording{}, a)
	assert.Contains(t, Names(), "recording")

	_, err = NewAdapter("missing")
	assert.Error(t, err)
}
