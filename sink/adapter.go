// Package sink holds the emission sinks decoded records are pushed into.
// Drivers register themselves from init and are built by name.
package sink

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aleksandr-gorokhov/komprender/internal/decode"
)

// Adapter is the common behaviour every sink exposes. It satisfies
// consume.Sink.
type Adapter interface {
	Configure(any) error                        // driver-specific config struct
	Emit(event string, rec decode.Record) error // best effort
	Close() error                               // idempotent
}

/*──────── registry ───────*/

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}

// Names lists the registered drivers.
func Names() []string {
	out := make([]string, 0, len(reg))
	for n := range reg {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

/*──────── fan-out ───────*/

// Fanout emits every record to each of its sinks. A failing sink does not
// keep the record from the others.
type Fanout []Adapter

func (f Fanout) Configure(any) error { return nil }

func (f Fanout) Emit(event string, rec decode.Record) error {
	var errs []error
	for _, s := range f {
		if err := s.Emit(event, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
