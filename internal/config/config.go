package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	Ingest    IngestConfig    `json:"ingest" yaml:"ingest"`
	Tenants   TenantsConfig   `json:"tenants" yaml:"tenants"`
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	Emitter   EmitterConfig   `json:"emitter" yaml:"emitter"`
	API       APIConfig       `json:"api" yaml:"api"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Alerts    AlertsConfig    `json:"alerts" yaml:"alerts"`
}

type IngestConfig struct {
	ChannelBuffer int           `json:"channel_buffer" yaml:"channel_buffer"`
	BatchSize     int           `json:"batch_size" yaml:"batch_size"`
	BatchTimeout  time.Duration `json:"batch_timeout" yaml:"batch_timeout"`
	DedupeWindow  time.Duration `json:"dedupe_window" yaml:"dedupe_window"`
	REST          RESTConfig    `json:"rest" yaml:"rest"`
	Syslog        SyslogConfig  `json:"syslog" yaml:"syslog"`
	Kafka         KafkaConfig   `json:"kafka" yaml:"kafka"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type SyslogConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	UDPAddr string `json:"udp_addr" yaml:"udp_addr"`
	TCPAddr string `json:"tcp_addr" yaml:"tcp_addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

// TenantRange maps one tenant to its source address space. Order in the
// ranges list is significant: resolution is first-match-wins.
type TenantRange struct {
	ID    string   `json:"id" yaml:"id"`
	CIDRs []string `json:"cidrs" yaml:"cidrs"`
}

type TenantsConfig struct {
	Default   string        `json:"default" yaml:"default"`
	Ranges    []TenantRange `json:"ranges" yaml:"ranges"`
	CacheSize int           `json:"cache_size" yaml:"cache_size"`
	CacheTTL  time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

type DetectionConfig struct {
	Threshold      int           `json:"threshold" yaml:"threshold"`
	Window         time.Duration `json:"window" yaml:"window"`
	ResetOnSuccess bool          `json:"reset_on_success" yaml:"reset_on_success"`
	UpdateInterval time.Duration `json:"update_interval" yaml:"update_interval"`
	MaxFutureSkew  time.Duration `json:"max_future_skew" yaml:"max_future_skew"`
	LateGrace      time.Duration `json:"late_grace" yaml:"late_grace"`
	SweepInterval  time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	IdleGrace      time.Duration `json:"idle_grace" yaml:"idle_grace"`
	Shards         int           `json:"shards" yaml:"shards"`
	MaxEventRefs   int           `json:"max_event_refs" yaml:"max_event_refs"`
}

type EmitterConfig struct {
	QueueSize  int           `json:"queue_size" yaml:"queue_size"`
	DrainGrace time.Duration `json:"drain_grace" yaml:"drain_grace"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type AlertsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			BatchSize:     100,
			BatchTimeout:  500 * time.Millisecond,
			DedupeWindow:  2 * time.Second,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			Syslog:        SyslogConfig{Enabled: true, UDPAddr: ":5514", TCPAddr: ":5514"},
			Kafka:         KafkaConfig{Enabled: false},
		},
		Tenants: TenantsConfig{
			Default:   "default",
			CacheSize: 4096,
			CacheTTL:  30 * time.Second,
		},
		Detection: DetectionConfig{
			Threshold:      5,
			Window:         300 * time.Second,
			ResetOnSuccess: true,
			UpdateInterval: 10 * time.Second,
			MaxFutureSkew:  5 * time.Minute,
			LateGrace:      1 * time.Minute,
			SweepInterval:  30 * time.Second,
			IdleGrace:      0, // 2x window when unset
			Shards:         16,
			MaxEventRefs:   32,
		},
		Emitter: EmitterConfig{QueueSize: 1000, DrainGrace: 5 * time.Second},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:authguard.db?_pragma=busy_timeout(5000)"},
		Alerts:  AlertsConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Ingest.BatchSize <= 0 {
		cfg.Ingest.BatchSize = 100
	}
	if cfg.Ingest.BatchTimeout <= 0 {
		cfg.Ingest.BatchTimeout = 500 * time.Millisecond
	}
	if cfg.Tenants.Default == "" {
		cfg.Tenants.Default = "default"
	}
	if cfg.Tenants.CacheSize <= 0 {
		cfg.Tenants.CacheSize = 4096
	}
	if cfg.Tenants.CacheTTL <= 0 {
		cfg.Tenants.CacheTTL = 30 * time.Second
	}
	if cfg.Detection.Threshold <= 0 {
		cfg.Detection.Threshold = 5
	}
	if cfg.Detection.Window <= 0 {
		cfg.Detection.Window = 300 * time.Second
	}
	if cfg.Detection.SweepInterval <= 0 {
		cfg.Detection.SweepInterval = 30 * time.Second
	}
	if cfg.Detection.IdleGrace <= 0 {
		cfg.Detection.IdleGrace = 2 * cfg.Detection.Window
	}
	if cfg.Detection.Shards <= 0 {
		cfg.Detection.Shards = 16
	}
	if cfg.Detection.MaxEventRefs <= 0 {
		cfg.Detection.MaxEventRefs = 32
	}
	if cfg.Emitter.QueueSize <= 0 {
		cfg.Emitter.QueueSize = 1000
	}
	if cfg.Emitter.DrainGrace <= 0 {
		cfg.Emitter.DrainGrace = 5 * time.Second
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 1000
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Syslog.Enabled && cfg.Ingest.Syslog.UDPAddr == "" && cfg.Ingest.Syslog.TCPAddr == "" {
		return errors.New("ingest.syslog.udp_addr or tcp_addr required when ingest.syslog.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Tenants.Default == "" {
		return errors.New("tenants.default must not be empty")
	}
	seen := make(map[string]struct{}, len(cfg.Tenants.Ranges))
	for _, tr := range cfg.Tenants.Ranges {
		if tr.ID == "" {
			return errors.New("tenants.ranges entry with empty id")
		}
		if _, dup := seen[tr.ID]; dup {
			return fmt.Errorf("tenants.ranges duplicate tenant id: %s", tr.ID)
		}
		seen[tr.ID] = struct{}{}
		if len(tr.CIDRs) == 0 {
			return fmt.Errorf("tenant %s has no cidrs", tr.ID)
		}
		for _, c := range tr.CIDRs {
			if _, err := netip.ParsePrefix(c); err != nil {
				return fmt.Errorf("tenant %s has invalid cidr %q: %w", tr.ID, c, err)
			}
		}
	}
	if cfg.Detection.Threshold <= 0 {
		return errors.New("detection.threshold must be > 0")
	}
	if cfg.Detection.Window <= 0 {
		return errors.New("detection.window must be > 0")
	}
	if cfg.Detection.IdleGrace > 0 && cfg.Detection.IdleGrace < cfg.Detection.Window {
		return errors.New("detection.idle_grace must be >= detection.window")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config with no backing file.
// Used by tests and by callers that run without a config file.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	applyDefaults(cfg)
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
