// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all FormFlow configuration.
type Config struct {
	Version int `yaml:"version"`

	Center     CenterConfig     `yaml:"center"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Report     ReportConfig     `yaml:"report"`
	EventLog   EventLogConfig   `yaml:"eventlog"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// CenterConfig identifies the contributing center gears run for.
type CenterConfig struct {
	ADCID   int    `yaml:"adcid"`
	Name    string `yaml:"name"`
	Project string `yaml:"project"`
}

// SchedulerConfig controls the submission scheduling gear.
type SchedulerConfig struct {
	// ModuleOrder is the round-robin drain order.
	ModuleOrder []string `yaml:"module_order"`

	// QueueTags are the tags a file must carry to be queued.
	QueueTags []string `yaml:"queue_tags"`

	// Extensions restricts queued files (e.g., ".csv", ".json").
	Extensions []string `yaml:"extensions"`

	// PollInterval is the delay between watch-mode passes.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ReportConfig controls the QC report gear.
type ReportConfig struct {
	// Modules filters the report pass; empty means all known modules.
	Modules []string `yaml:"modules"`

	// Format selects the output table: csv | xlsx
	Format string `yaml:"format"`

	// OutputDir is where report files are written.
	OutputDir string `yaml:"output_dir"`

	// Workers bounds concurrent per-project passes.
	Workers int `yaml:"workers"`
}

// EventLogConfig controls the S3 visit event log.
type EventLogConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Env      string `yaml:"env"` // key prefix: prod | dev | sandbox
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// CheckpointConfig controls pass-checkpoint persistence.
type CheckpointConfig struct {
	// Backend selects the store: local | s3 | redis, or a mirrored pair
	// such as "local+s3" (saves go to both, reads prefer the first).
	Backend string `yaml:"backend"`

	// Dir is the local checkpoint directory.
	Dir string `yaml:"dir"`

	// Bucket for the s3 backend.
	Bucket string `yaml:"bucket"`

	// RedisAddress for the redis backend.
	RedisAddress string `yaml:"redis_address"`
}

// TelemetryConfig for optional tracing.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	formflowDir := filepath.Join(homeDir, ".formflow")

	return &Config{
		Version: 1,
		Scheduler: SchedulerConfig{
			ModuleOrder:  []string{"UDS", "FTLD", "LBD", "NP", "MLST", "ENROLL"},
			QueueTags:    []string{"queue"},
			Extensions:   []string{".csv", ".json"},
			PollInterval: 30 * time.Second,
		},
		Report: ReportConfig{
			Format:    "csv",
			OutputDir: filepath.Join(formflowDir, "reports"),
			Workers:   4,
		},
		EventLog: EventLogConfig{
			Env: "dev",
		},
		Checkpoint: CheckpointConfig{
			Backend: "local",
			Dir:     filepath.Join(formflowDir, "checkpoints"),
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Start with defaults
	m.config = Default()

	// Load from paths in order (later overrides earlier)
	paths := m.getConfigPaths()
	for _, path := range paths {
		if err := m.loadFile(path); err != nil {
			// Ignore missing files, but surface errors for existing files
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	// Override with environment variables
	m.loadEnv()

	// Ensure directories exist
	m.ensureDirs()

	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/formflow/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".formflow", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".formflow.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	// Merge non-zero values
	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	// Center
	if src.Center.ADCID != 0 {
		m.config.Center.ADCID = src.Center.ADCID
	}
	if src.Center.Name != "" {
		m.config.Center.Name = src.Center.Name
	}
	if src.Center.Project != "" {
		m.config.Center.Project = src.Center.Project
	}

	// Scheduler
	if len(src.Scheduler.ModuleOrder) > 0 {
		m.config.Scheduler.ModuleOrder = src.Scheduler.ModuleOrder
	}
	if len(src.Scheduler.QueueTags) > 0 {
		m.config.Scheduler.QueueTags = src.Scheduler.QueueTags
	}
	if len(src.Scheduler.Extensions) > 0 {
		m.config.Scheduler.Extensions = src.Scheduler.Extensions
	}
	if src.Scheduler.PollInterval != 0 {
		m.config.Scheduler.PollInterval = src.Scheduler.PollInterval
	}

	// Report
	if len(src.Report.Modules) > 0 {
		m.config.Report.Modules = src.Report.Modules
	}
	if src.Report.Format != "" {
		m.config.Report.Format = src.Report.Format
	}
	if src.Report.OutputDir != "" {
		m.config.Report.OutputDir = src.Report.OutputDir
	}
	if src.Report.Workers != 0 {
		m.config.Report.Workers = src.Report.Workers
	}

	// EventLog
	if src.EventLog.Enabled {
		m.config.EventLog.Enabled = true
	}
	if src.EventLog.Env != "" {
		m.config.EventLog.Env = src.EventLog.Env
	}
	if src.EventLog.Bucket != "" {
		m.config.EventLog.Bucket = src.EventLog.Bucket
	}
	if src.EventLog.Region != "" {
		m.config.EventLog.Region = src.EventLog.Region
	}
	if src.EventLog.Endpoint != "" {
		m.config.EventLog.Endpoint = src.EventLog.Endpoint
	}

	// Checkpoint
	if src.Checkpoint.Backend != "" {
		m.config.Checkpoint.Backend = src.Checkpoint.Backend
	}
	if src.Checkpoint.Dir != "" {
		m.config.Checkpoint.Dir = src.Checkpoint.Dir
	}
	if src.Checkpoint.Bucket != "" {
		m.config.Checkpoint.Bucket = src.Checkpoint.Bucket
	}
	if src.Checkpoint.RedisAddress != "" {
		m.config.Checkpoint.RedisAddress = src.Checkpoint.RedisAddress
	}

	// Telemetry
	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	// FORMFLOW_ADCID
	if v := os.Getenv("FORMFLOW_ADCID"); v != "" {
		var adcid int
		if _, err := fmt.Sscanf(v, "%d", &adcid); err == nil {
			m.config.Center.ADCID = adcid
		}
	}

	// FORMFLOW_PROJECT
	if v := os.Getenv("FORMFLOW_PROJECT"); v != "" {
		m.config.Center.Project = v
	}

	// FORMFLOW_ENV
	if v := os.Getenv("FORMFLOW_ENV"); v != "" {
		m.config.EventLog.Env = v
	}

	// FORMFLOW_EVENT_BUCKET
	if v := os.Getenv("FORMFLOW_EVENT_BUCKET"); v != "" {
		m.config.EventLog.Bucket = v
		m.config.EventLog.Enabled = true
	}

	// FORMFLOW_REDIS
	if v := os.Getenv("FORMFLOW_REDIS"); v != "" {
		m.config.Checkpoint.RedisAddress = v
	}
}

// ensureDirs creates necessary directories.
func (m *Manager) ensureDirs() {
	dirs := []string{
		m.config.Report.OutputDir,
		m.config.Checkpoint.Dir,
	}

	for _, dir := range dirs {
		if dir != "" {
			os.MkdirAll(dir, 0755)
		}
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".formflow")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalManager.Load()
	})
	return globalManager
}
