package kafka

import "fmt"

// Factory builds an unconfigured Adapter.
type Factory func() Adapter

var registry = map[string]Factory{}

// Register is called from each driver's init() or the binary's factory map.
func Register(name string, f Factory) {
	registry[name] = f
}

func init() {
	Register(DefaultDriver, func() Adapter { return &SaramaDriver{} })
}

// NewAdapter returns a configured driver by cfg.Driver ("sarama" by default).
func NewAdapter(cfg Config) (Adapter, error) {
	cfg.ApplyDefaults()
	f, ok := registry[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("kafka: unsupported driver %q", cfg.Driver)
	}
	a := f()
	if err := a.Configure(cfg); err != nil {
		return nil, err
	}
	return a, nil
}
