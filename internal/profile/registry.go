package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"proppilot/internal/logger"
	"proppilot/internal/types"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Profile carries the per-instrument constraints the engine needs:
// broker contract limits, asset class and optional risk overrides.
type Profile struct {
	Symbol        string  `mapstructure:"symbol" yaml:"symbol"`
	AssetClass    string  `mapstructure:"asset_class" yaml:"asset_class"`
	MinLot        float64 `mapstructure:"min_lot" yaml:"min_lot"`
	MaxLot        float64 `mapstructure:"max_lot" yaml:"max_lot"`
	LotStep       float64 `mapstructure:"lot_step" yaml:"lot_step"`
	PointValue    float64 `mapstructure:"point_value" yaml:"point_value"`
	RiskBudgetUSD float64 `mapstructure:"risk_budget_usd" yaml:"risk_budget_usd"`
	Enabled       *bool   `mapstructure:"enabled" yaml:"enabled"`
}

// Active reports whether the instrument should be evaluated; profiles
// default to enabled when the flag is omitted.
func (p Profile) Active() bool {
	return p.Enabled == nil || *p.Enabled
}

// Broker converts the profile into the engine-facing contract spec.
func (p Profile) Broker() types.BrokerSpec {
	return types.BrokerSpec{
		Symbol:     p.Symbol,
		AssetClass: types.AssetClass(p.AssetClass),
		MinLot:     p.MinLot,
		MaxLot:     p.MaxLot,
		LotStep:    p.LotStep,
		PointValue: p.PointValue,
	}
}

// FileConfig maps the instruments file.
type FileConfig struct {
	Instruments map[string]Profile `mapstructure:"instruments" yaml:"instruments"`
}

// Snapshot is an immutable view of the loaded profiles.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Profiles map[string]Profile
}

// ChangeListener fires after every successful reload.
type ChangeListener func(Snapshot)

// Registry loads instrument profiles from YAML, validates them against
// the embedded schema and hot-reloads on file change. A reload that
// fails validation is discarded and the previous snapshot stays live.
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// fileSchema constrains the instruments document. Validation runs on
// the raw decoded YAML so a typo fails loudly instead of silently
// zeroing a contract field.
const fileSchema = `{
  "type": "object",
  "required": ["instruments"],
  "properties": {
    "instruments": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["asset_class", "min_lot", "max_lot", "lot_step", "point_value"],
        "properties": {
          "symbol": {"type": "string"},
          "asset_class": {"enum": ["forex", "index", "commodity", "crypto"]},
          "min_lot": {"type": "number", "exclusiveMinimum": 0},
          "max_lot": {"type": "number", "exclusiveMinimum": 0},
          "lot_step": {"type": "number", "exclusiveMinimum": 0},
          "point_value": {"type": "number", "exclusiveMinimum": 0},
          "risk_budget_usd": {"type": "number", "minimum": 0},
          "enabled": {"type": "boolean"}
        },
        "additionalProperties": false
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("instruments.json", fileSchema)

// NewRegistry reads the profile file and starts watching it.
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("profile registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read instrument profiles failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("instrument profile reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot returns the current profile set.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Profile returns the profile for symbol, matched case-insensitively.
func (r *Registry) Profile(symbol string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.snapshot.Profiles[strings.ToUpper(strings.TrimSpace(symbol))]
	return p, ok
}

// Subscribe registers a listener for reload events.
func (r *Registry) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	cfg, err := readProfileFile(r.path)
	if err != nil {
		return err
	}
	profiles := make(map[string]Profile, len(cfg.Instruments))
	for name, p := range cfg.Instruments {
		norm, err := normalizeProfile(name, p)
		if err != nil {
			return err
		}
		profiles[norm.Symbol] = norm
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Profiles: profiles,
	}
	r.mu.Unlock()
	logger.Infof("instrument registry loaded %d profiles from %s", len(profiles), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("profile listener")
			cb(snap)
		}(fn)
	}
}

func normalizeProfile(name string, p Profile) (Profile, error) {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	if p.Symbol == "" {
		p.Symbol = strings.ToUpper(strings.TrimSpace(name))
	}
	p.AssetClass = strings.ToLower(strings.TrimSpace(p.AssetClass))
	if !p.Broker().Valid() {
		return Profile{}, fmt.Errorf("instrument %s has inconsistent contract fields", p.Symbol)
	}
	return p, nil
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Profiles: make(map[string]Profile, len(src.Profiles)),
	}
	for sym, p := range src.Profiles {
		dst.Profiles[sym] = p
	}
	return dst
}

func safeRecover(tag string) {
	if rec := recover(); rec != nil {
		logger.Errorf("%s panic: %v", tag, rec)
	}
}

func readProfileFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read instrument profiles failed: %w", err)
	}
	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return FileConfig{}, fmt.Errorf("parse instrument profiles failed: %w", err)
	}
	if err := validateAgainstSchema(generic); err != nil {
		return FileConfig{}, fmt.Errorf("instrument profiles rejected: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse instrument profiles failed: %w", err)
	}
	return cfg, nil
}

// validateAgainstSchema round-trips the document through JSON so the
// schema library sees plain types.
func validateAgainstSchema(doc map[string]any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return err
	}
	return compiledSchema.Validate(plain)
}
