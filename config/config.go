// Package config loads swrcache settings from YAML.
//
//	cache:
//	  ttl: 30s
//	  stale_while_revalidate: true
//	  max_stale: 10m
//	  sweep_interval: 1m
//	provider:
//	  kind: lru        # memory | lru | ristretto
//	  max_entries: 1000
//	log:
//	  backend: zap     # slog | zap | logrus | apex | none
//	  level: info
//	bus:
//	  transport: redis # "" | redis | amqp
//	  url: localhost:6379
//	  channel: app:invalidate  # redis channel or amqp exchange
//	  codec: msgpack
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/swrcache"
	"github.com/unkn0wn-root/swrcache/bus"
	pr "github.com/unkn0wn-root/swrcache/provider"
	"github.com/unkn0wn-root/swrcache/provider/lru"
	"github.com/unkn0wn-root/swrcache/provider/memory"
	"github.com/unkn0wn-root/swrcache/provider/ristretto"
)

// EnvVar names the config file when no explicit path is given.
const EnvVar = "SWRCACHE_CONFIG"

var ErrNoConfig = errors.New("config: no path given and " + EnvVar + " is not set")

// Duration reads "750ms", "30s", "5m" from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", n.Line, err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

func (d Duration) Std() time.Duration { return time.Duration(d) }

type File struct {
	Source   string   `yaml:"-"`
	Cache    Cache    `yaml:"cache"`
	Provider Provider `yaml:"provider"`
	Log      Log      `yaml:"log"`
	Bus      Bus      `yaml:"bus"`
}

type Cache struct {
	TTL                  Duration `yaml:"ttl"`
	StaleWhileRevalidate *bool    `yaml:"stale_while_revalidate"` // nil => true
	MaxStale             Duration `yaml:"max_stale"`
	SweepInterval        Duration `yaml:"sweep_interval"`
	BumpOnInvalidate     bool     `yaml:"bump_on_invalidate"`
	Disabled             bool     `yaml:"disabled"`
}

type Provider struct {
	Kind        string `yaml:"kind"` // "" => memory
	MaxEntries  int    `yaml:"max_entries"`
	NumCounters int64  `yaml:"num_counters"` // 0 => 10 * max_cost
	MaxCost     int64  `yaml:"max_cost"`
	BufferItems int64  `yaml:"buffer_items"` // 0 => 64
	Metrics     bool   `yaml:"metrics"`
}

type Log struct {
	Backend string `yaml:"backend"` // "" => slog
	Level   string `yaml:"level"`   // "" => info
}

type Bus struct {
	Transport       string `yaml:"transport"` // "" => no mirror
	URL             string `yaml:"url"`
	Channel         string `yaml:"channel"` // redis channel or amqp exchange
	Codec           string `yaml:"codec"`   // "" => json
	MaxMessageBytes int    `yaml:"max_message_bytes"`
}

// Path returns explicit, or the value of SWRCACHE_CONFIG.
func Path(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p := os.Getenv(EnvVar); p != "" {
		return p, nil
	}
	return "", ErrNoConfig
}

// Load reads, parses and validates the file at Path(path).
func Load(path string) (*File, error) {
	p, err := Path(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	f, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", p, err)
	}
	f.Source = p
	return f, nil
}

// Parse decodes and validates YAML. Unknown fields are errors.
func Parse(b []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) Validate() error {
	var errs []error
	if f.Cache.TTL < 0 || f.Cache.MaxStale < 0 || f.Cache.SweepInterval < 0 {
		errs = append(errs, errors.New("cache: durations must not be negative"))
	}
	if f.Cache.MaxStale > 0 && !f.StaleWhileRevalidate() {
		errs = append(errs, errors.New("cache: max_stale needs stale_while_revalidate"))
	}

	switch f.ProviderKind() {
	case "memory":
	case "lru":
		if f.Provider.MaxEntries <= 0 {
			errs = append(errs, errors.New("provider: lru needs max_entries > 0"))
		}
	case "ristretto":
		if f.Provider.MaxCost <= 0 {
			errs = append(errs, errors.New("provider: ristretto needs max_cost > 0"))
		}
	default:
		errs = append(errs, fmt.Errorf("provider: unknown kind %q", f.Provider.Kind))
	}

	switch f.LogBackend() {
	case "slog", "zap", "logrus", "apex", "none":
	default:
		errs = append(errs, fmt.Errorf("log: unknown backend %q", f.Log.Backend))
	}

	switch strings.ToLower(f.Bus.Transport) {
	case "":
	case "redis", "amqp":
		if f.Bus.URL == "" {
			errs = append(errs, fmt.Errorf("bus: %s needs url", f.Bus.Transport))
		}
	default:
		errs = append(errs, fmt.Errorf("bus: unknown transport %q", f.Bus.Transport))
	}
	if _, err := f.BusCodec(); err != nil {
		errs = append(errs, err)
	}
	if f.Bus.MaxMessageBytes < 0 {
		errs = append(errs, errors.New("bus: max_message_bytes must not be negative"))
	}
	return errors.Join(errs...)
}

func (f *File) StaleWhileRevalidate() bool {
	return f.Cache.StaleWhileRevalidate == nil || *f.Cache.StaleWhileRevalidate
}

func (f *File) ProviderKind() string {
	if f.Provider.Kind == "" {
		return "memory"
	}
	return strings.ToLower(f.Provider.Kind)
}

func (f *File) LogBackend() string {
	if f.Log.Backend == "" {
		return "slog"
	}
	return strings.ToLower(f.Log.Backend)
}

func (f *File) BusCodec() (bus.EventCodec, error) {
	if f.Bus.Codec == "" {
		return bus.JSON, nil
	}
	return bus.CodecByName(strings.ToLower(f.Bus.Codec))
}

// NewProvider builds the configured record store.
func (f *File) NewProvider() (pr.Provider, error) {
	p := f.Provider
	switch f.ProviderKind() {
	case "memory":
		return memory.New(), nil
	case "lru":
		return lru.New(lru.Config{MaxEntries: p.MaxEntries})
	case "ristretto":
		counters, buffer := p.NumCounters, p.BufferItems
		if counters == 0 {
			counters = 10 * p.MaxCost
		}
		if buffer == 0 {
			buffer = 64
		}
		return ristretto.New(ristretto.Config{
			NumCounters: counters,
			MaxCost:     p.MaxCost,
			BufferItems: buffer,
			Metrics:     p.Metrics,
		})
	default:
		return nil, fmt.Errorf("provider: unknown kind %q", p.Kind)
	}
}

// BaseOptions maps the file onto swrcache.Options without a provider.
// Logger and Hooks are left for the caller.
func (f *File) BaseOptions() swrcache.Options {
	return swrcache.Options{
		TTL:                         f.Cache.TTL.Std(),
		DisableStaleWhileRevalidate: !f.StaleWhileRevalidate(),
		MaxStale:                    f.Cache.MaxStale.Std(),
		SweepInterval:               f.Cache.SweepInterval.Std(),
		BumpOnInvalidate:            f.Cache.BumpOnInvalidate,
		Disabled:                    f.Cache.Disabled,
	}
}

// CacheOptions is BaseOptions with a freshly built provider. A provider
// belongs to one cache: call it once per cache.
func (f *File) CacheOptions() (swrcache.Options, error) {
	prov, err := f.NewProvider()
	if err != nil {
		return swrcache.Options{}, err
	}
	opts := f.BaseOptions()
	opts.Provider = prov
	return opts, nil
}
