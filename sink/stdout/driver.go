package stdout

import (
	"fmt"
	"io"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/aleksandr-gorokhov/komprender/internal/decode"
	"github.com/aleksandr-gorokhov/komprender/sink"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

/* ────────── public config ────────── */
type Config struct {
	Topic         string    `koanf:"topic" yaml:"topic"`                     // label printed before [partition]
	PrintCounter  bool      `koanf:"print_counter" yaml:"print_counter"`     // prepend seq#
	ValueMaxBytes int       `koanf:"value_max_bytes" yaml:"value_max_bytes"` // 0 = no truncation
	Out           io.Writer `koanf:"-" yaml:"-"`                             // defaults to os.Stdout
}

/* ────────── driver ────────── */
type driver struct {
	cfg Config

	mu  sync.Mutex // serialises writes and seq
	seq uint64
}

func New(cfg Config) sink.Adapter {
	d := &driver{}
	_ = d.Configure(cfg)
	return d
}

/* ────────── sink.Adapter ────────── */
func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	if c.Out == nil {
		c.Out = os.Stdout
	}
	d.cfg = c
	return nil
}

func (d *driver) Emit(_ string, rec decode.Record) error {
	value, err := json.Marshal(rec.Value)
	if err != nil {
		return fmt.Errorf("stdout-sink: %w", err)
	}
	if n := d.cfg.ValueMaxBytes; n > 0 && len(value) > n {
		value = append(value[:n:n], "..."...)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg.PrintCounter {
		d.seq++
		if _, err := fmt.Fprintf(d.cfg.Out, "[%06d] ", d.seq); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(d.cfg.Out, "%s[%d]@%d key=%q value=%s\n",
		d.cfg.Topic, rec.Partition, rec.Offset, rec.Key, value)
	return err
}

func (d *driver) Close() error { return nil }

/* ────────── auto-register ────────── */
func init() {
	sink.Register("stdout", func() sink.Adapter { return New(Config{}) })
}
