package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for a prism node.
type Config struct {
	Node        NodeConfig        `yaml:"node" json:"node"`
	Collections CollectionsConfig `yaml:"collections" json:"collections"`
	Cluster     ClusterConfig     `yaml:"cluster" json:"cluster"`
	Discovery   DiscoveryConfig   `yaml:"discovery" json:"discovery"`
	Propagation PropagationConfig `yaml:"propagation" json:"propagation"`
	Hybrid      HybridConfig      `yaml:"hybrid" json:"hybrid"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	RPC         RPCConfig         `yaml:"rpc" json:"rpc"`
}

// NodeConfig identifies this node within the cluster.
type NodeConfig struct {
	ID      string `yaml:"id" json:"id"`
	Address string `yaml:"address" json:"address"`
}

// CollectionsConfig configures where collection schemas and shard data live.
type CollectionsConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// ClusterConfig configures cluster membership health and RPC deadlines.
type ClusterConfig struct {
	HeartbeatTimeoutSecs int `yaml:"heartbeat_timeout_secs" json:"heartbeat_timeout_secs"`
	ConnectTimeoutMS     int `yaml:"connect_timeout_ms" json:"connect_timeout_ms"`
	RequestTimeoutMS     int `yaml:"request_timeout_ms" json:"request_timeout_ms"`
}

// DiscoveryConfig configures DNS-based node discovery.
type DiscoveryConfig struct {
	DNSName             string `yaml:"dns_name" json:"dns_name"`
	RefreshIntervalSecs int    `yaml:"refresh_interval_secs" json:"refresh_interval_secs"`
	DefaultPort         int    `yaml:"default_port" json:"default_port"`
}

// PropagationConfig configures schema propagation fan-out.
type PropagationConfig struct {
	NodeTimeoutMS       int  `yaml:"node_timeout_ms" json:"node_timeout_ms"`
	MaxConcurrent       int  `yaml:"max_concurrent" json:"max_concurrent"`
	MaxRetries          int  `yaml:"max_retries" json:"max_retries"`
	RetryDelayMS        int  `yaml:"retry_delay_ms" json:"retry_delay_ms"`
	RequireAllNodes     bool `yaml:"require_all_nodes" json:"require_all_nodes"`
	MinAcknowledgements int  `yaml:"min_acknowledgements" json:"min_acknowledgements"`
}

// HybridConfig configures the default hybrid search strategy.
type HybridConfig struct {
	DefaultStrategy string  `yaml:"default_strategy" json:"default_strategy"`
	RRFK            int     `yaml:"rrf_k" json:"rrf_k"`
	TextWeight      float64 `yaml:"text_weight" json:"text_weight"`
	VectorWeight    float64 `yaml:"vector_weight" json:"vector_weight"`
	Normalization   string  `yaml:"normalization" json:"normalization"`
}

// LoggingConfig configures a node's structured log output.
type LoggingConfig struct {
	Level         string `yaml:"level" json:"level"`
	FilePath      string `yaml:"file_path" json:"file_path"`
	MaxSizeMB     int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles      int    `yaml:"max_files" json:"max_files"`
	WriteToStderr bool   `yaml:"write_to_stderr" json:"write_to_stderr"`
}

// RPCConfig configures the QUIC transport.
type RPCConfig struct {
	HandshakeTimeoutMS int `yaml:"handshake_timeout_ms" json:"handshake_timeout_ms"`
}

// NewConfig creates a Config populated with sensible defaults, mirroring
// the enumerated configuration knobs.
func NewConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ID:      defaultNodeID(),
			Address: "127.0.0.1:7800",
		},
		Collections: CollectionsConfig{
			Dir: defaultCollectionsDir(),
		},
		Cluster: ClusterConfig{
			HeartbeatTimeoutSecs: 30,
			ConnectTimeoutMS:     5000,
			RequestTimeoutMS:     10000,
		},
		Discovery: DiscoveryConfig{
			DNSName:             "",
			RefreshIntervalSecs: 10,
			DefaultPort:         7800,
		},
		Propagation: PropagationConfig{
			NodeTimeoutMS:       5000,
			MaxConcurrent:       8,
			MaxRetries:          3,
			RetryDelayMS:        1000,
			RequireAllNodes:     false,
			MinAcknowledgements: 1,
		},
		Hybrid: HybridConfig{
			DefaultStrategy: "rrf",
			RRFK:            60,
			TextWeight:      0.5,
			VectorWeight:    0.5,
			Normalization:   "none",
		},
		Logging: LoggingConfig{
			Level:         "info",
			FilePath:      defaultLogPathForNode(),
			MaxSizeMB:     10,
			MaxFiles:      5,
			WriteToStderr: true,
		},
		RPC: RPCConfig{
			HandshakeTimeoutMS: 5000,
		},
	}
}

func defaultNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "node-" + strconv.Itoa(os.Getpid())
	}
	return host
}

func defaultCollectionsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".prism", "collections")
	}
	return filepath.Join(home, ".prism", "collections")
}

func defaultLogPathForNode() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".prism", "logs", "node.log")
	}
	return filepath.Join(home, ".prism", "logs", "node.log")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/prism/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/prism/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "prism", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "prism", "config.yaml")
	}
	return filepath.Join(home, ".config", "prism", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration for a node starting from dir, applying
// overrides in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/prism/config.yaml)
//  3. Node config (prism.yaml in dir)
//  4. Environment variables (PRISM_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from prism.yaml or prism.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, "prism.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, "prism.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Node.ID != "" {
		c.Node.ID = other.Node.ID
	}
	if other.Node.Address != "" {
		c.Node.Address = other.Node.Address
	}

	if other.Collections.Dir != "" {
		c.Collections.Dir = other.Collections.Dir
	}

	if other.Cluster.HeartbeatTimeoutSecs != 0 {
		c.Cluster.HeartbeatTimeoutSecs = other.Cluster.HeartbeatTimeoutSecs
	}
	if other.Cluster.ConnectTimeoutMS != 0 {
		c.Cluster.ConnectTimeoutMS = other.Cluster.ConnectTimeoutMS
	}
	if other.Cluster.RequestTimeoutMS != 0 {
		c.Cluster.RequestTimeoutMS = other.Cluster.RequestTimeoutMS
	}

	if other.Discovery.DNSName != "" {
		c.Discovery.DNSName = other.Discovery.DNSName
	}
	if other.Discovery.RefreshIntervalSecs != 0 {
		c.Discovery.RefreshIntervalSecs = other.Discovery.RefreshIntervalSecs
	}
	if other.Discovery.DefaultPort != 0 {
		c.Discovery.DefaultPort = other.Discovery.DefaultPort
	}

	if other.Propagation.NodeTimeoutMS != 0 {
		c.Propagation.NodeTimeoutMS = other.Propagation.NodeTimeoutMS
	}
	if other.Propagation.MaxConcurrent != 0 {
		c.Propagation.MaxConcurrent = other.Propagation.MaxConcurrent
	}
	if other.Propagation.MaxRetries != 0 {
		c.Propagation.MaxRetries = other.Propagation.MaxRetries
	}
	if other.Propagation.RetryDelayMS != 0 {
		c.Propagation.RetryDelayMS = other.Propagation.RetryDelayMS
	}
	if other.Propagation.MinAcknowledgements != 0 {
		c.Propagation.MinAcknowledgements = other.Propagation.MinAcknowledgements
	}
	// RequireAllNodes can legitimately be false; only the presence of any
	// other propagation field signals this block was actually set.
	if other.Propagation.NodeTimeoutMS != 0 || other.Propagation.MaxConcurrent != 0 ||
		other.Propagation.MaxRetries != 0 || other.Propagation.RetryDelayMS != 0 ||
		other.Propagation.MinAcknowledgements != 0 {
		c.Propagation.RequireAllNodes = other.Propagation.RequireAllNodes
	}

	if other.Hybrid.DefaultStrategy != "" {
		c.Hybrid.DefaultStrategy = other.Hybrid.DefaultStrategy
	}
	if other.Hybrid.RRFK != 0 {
		c.Hybrid.RRFK = other.Hybrid.RRFK
	}
	if other.Hybrid.TextWeight != 0 {
		c.Hybrid.TextWeight = other.Hybrid.TextWeight
	}
	if other.Hybrid.VectorWeight != 0 {
		c.Hybrid.VectorWeight = other.Hybrid.VectorWeight
	}
	if other.Hybrid.Normalization != "" {
		c.Hybrid.Normalization = other.Hybrid.Normalization
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}

	if other.RPC.HandshakeTimeoutMS != 0 {
		c.RPC.HandshakeTimeoutMS = other.RPC.HandshakeTimeoutMS
	}
}

// applyEnvOverrides applies PRISM_* environment variable overrides, the
// highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PRISM_NODE_ID"); v != "" {
		c.Node.ID = v
	}
	if v := os.Getenv("PRISM_NODE_ADDRESS"); v != "" {
		c.Node.Address = v
	}
	if v := os.Getenv("PRISM_COLLECTIONS_DIR"); v != "" {
		c.Collections.Dir = v
	}
	if v := os.Getenv("PRISM_DISCOVERY_DNS_NAME"); v != "" {
		c.Discovery.DNSName = v
	}
	if v := os.Getenv("PRISM_HYBRID_TEXT_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Hybrid.TextWeight = w
		}
	}
	if v := os.Getenv("PRISM_HYBRID_VECTOR_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Hybrid.VectorWeight = w
		}
	}
	if v := os.Getenv("PRISM_HYBRID_RRF_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Hybrid.RRFK = k
		}
	}
	if v := os.Getenv("PRISM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Validate validates the configuration and returns an error describing the
// first invalid field.
func (c *Config) Validate() error {
	if c.Node.ID == "" {
		return fmt.Errorf("node.id must not be empty")
	}

	if c.Hybrid.TextWeight < 0 || c.Hybrid.TextWeight > 1 {
		return fmt.Errorf("hybrid.text_weight must be between 0 and 1, got %f", c.Hybrid.TextWeight)
	}
	if c.Hybrid.VectorWeight < 0 || c.Hybrid.VectorWeight > 1 {
		return fmt.Errorf("hybrid.vector_weight must be between 0 and 1, got %f", c.Hybrid.VectorWeight)
	}

	validStrategies := map[string]bool{"rrf": true, "weighted": true}
	if !validStrategies[strings.ToLower(c.Hybrid.DefaultStrategy)] {
		return fmt.Errorf("hybrid.default_strategy must be 'rrf' or 'weighted', got %s", c.Hybrid.DefaultStrategy)
	}

	validNormalizations := map[string]bool{"none": true, "max_norm": true, "metric_aware": true}
	if !validNormalizations[strings.ToLower(c.Hybrid.Normalization)] {
		return fmt.Errorf("hybrid.normalization must be 'none', 'max_norm', or 'metric_aware', got %s", c.Hybrid.Normalization)
	}

	if c.Propagation.MinAcknowledgements < 0 {
		return fmt.Errorf("propagation.min_acknowledgements must be non-negative, got %d", c.Propagation.MinAcknowledgements)
	}
	if c.Propagation.MaxConcurrent <= 0 {
		return fmt.Errorf("propagation.max_concurrent must be positive, got %d", c.Propagation.MaxConcurrent)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// DefaultPropagationConcurrency returns a sensible propagation fan-out
// width when the config doesn't set one, scaled to the host's CPU count
// the way the node sizes its other worker pools.
func DefaultPropagationConcurrency() int {
	n := runtime.NumCPU()
	if n < 2 {
		return 2
	}
	if n > 16 {
		return 16
	}
	return n
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
