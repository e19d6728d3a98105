// Package config loads and validates the proxy configuration.
//
// Configuration is merged from three layers, later layers winning:
// built-in defaults, an optional TOML file, and S3PROXY_* environment
// variables. The result is built once at startup and immutable afterwards.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ruteri/s3proxy/interfaces"
)

// BackendType selects which provider adapter the factory constructs.
type BackendType string

const (
	// BackendAWS targets AWS S3 (or an S3-compatible store).
	BackendAWS BackendType = "aws"
	// BackendAzure targets Azure Blob Storage.
	BackendAzure BackendType = "azure"
	// BackendGCP targets Google Cloud Storage.
	BackendGCP BackendType = "gcp"
)

// ParseBackendType normalizes a backend type string. Accepted aliases:
// "aws"/"s3", "azure", "gcp"/"gcs"/"google".
func ParseBackendType(s string) (BackendType, error) {
	switch strings.ToLower(s) {
	case "aws", "s3":
		return BackendAWS, nil
	case "azure":
		return BackendAzure, nil
	case "gcp", "gcs", "google":
		return BackendGCP, nil
	default:
		return "", interfaces.NewConfigError("backend.type", fmt.Sprintf("unknown backend type: %q", s))
	}
}

// AWSConfig holds AWS S3 settings. With UseManagedIdentity the SDK's
// default credential chain (IRSA, environment, instance metadata, task
// role) is used; otherwise both static keys are required.
type AWSConfig struct {
	UseManagedIdentity bool   `mapstructure:"use_managed_identity"`
	AccessKeyID        string `mapstructure:"access_key_id"`
	SecretAccessKey    string `mapstructure:"secret_access_key"`
	Region             string `mapstructure:"region"`
	Endpoint           string `mapstructure:"endpoint"`
	AllowHTTP          bool   `mapstructure:"allow_http"`
}

// AzureConfig holds Azure Blob Storage settings. With UseManagedIdentity
// the DefaultAzureCredential chain (workload identity federation, managed
// identity endpoint, CLI) is used; otherwise AccessKey is required.
// UseEmulator redirects to a local Azurite endpoint and bypasses both.
type AzureConfig struct {
	AccountName        string `mapstructure:"account_name"`
	UseManagedIdentity bool   `mapstructure:"use_managed_identity"`
	AccessKey          string `mapstructure:"access_key"`
	UseEmulator        bool   `mapstructure:"use_emulator"`
}

// GCPConfig holds Google Cloud Storage settings. With UseManagedIdentity
// Application Default Credentials are used; otherwise exactly one of
// ServiceAccountPath or ServiceAccountKey (inline JSON) must be set.
type GCPConfig struct {
	UseManagedIdentity bool   `mapstructure:"use_managed_identity"`
	ServiceAccountPath string `mapstructure:"service_account_path"`
	ServiceAccountKey  string `mapstructure:"service_account_key"`
}

// BackendConfig is the tagged union over the three provider variants.
// Type selects the variant; only the selected variant is validated and
// used. Bucket names the bucket or container and Prefix, when set, is
// prepended to every logical key at the adapter boundary.
type BackendConfig struct {
	Type   BackendType `mapstructure:"type"`
	Bucket string      `mapstructure:"bucket"`
	Prefix string      `mapstructure:"prefix"`

	AWS   AWSConfig   `mapstructure:"aws"`
	Azure AzureConfig `mapstructure:"azure"`
	GCP   GCPConfig   `mapstructure:"gcp"`
}

// ServerConfig tunes the HTTP surface.
type ServerConfig struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	TimeoutSecs int    `mapstructure:"timeout_secs"`
	MaxBodySize int64  `mapstructure:"max_body_size"`
}

// Config is the effective process configuration.
type Config struct {
	Server   ServerConfig  `mapstructure:"server"`
	Backend  BackendConfig `mapstructure:"backend"`
	LogLevel string        `mapstructure:"log_level"`
}

const (
	defaultListenAddr  = "0.0.0.0:8080"
	defaultTimeoutSecs = 300
	defaultMaxBodySize = 5 * 1024 * 1024 * 1024 // 5 GiB
	defaultRegion      = "us-east-1"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("server.listen_addr", defaultListenAddr)
	v.SetDefault("server.metrics_addr", "")
	v.SetDefault("server.timeout_secs", defaultTimeoutSecs)
	v.SetDefault("server.max_body_size", defaultMaxBodySize)

	v.SetDefault("backend.type", string(BackendAWS))
	v.SetDefault("backend.bucket", "")
	v.SetDefault("backend.prefix", "")

	v.SetDefault("backend.aws.use_managed_identity", true)
	v.SetDefault("backend.aws.access_key_id", "")
	v.SetDefault("backend.aws.secret_access_key", "")
	v.SetDefault("backend.aws.region", defaultRegion)
	v.SetDefault("backend.aws.endpoint", "")
	v.SetDefault("backend.aws.allow_http", false)

	v.SetDefault("backend.azure.account_name", "")
	v.SetDefault("backend.azure.use_managed_identity", true)
	v.SetDefault("backend.azure.access_key", "")
	v.SetDefault("backend.azure.use_emulator", false)

	v.SetDefault("backend.gcp.use_managed_identity", true)
	v.SetDefault("backend.gcp.service_account_path", "")
	v.SetDefault("backend.gcp.service_account_key", "")
}

// Load builds the effective configuration: defaults, then the optional
// TOML file at configFile, then S3PROXY_* environment variables. An
// optional .env file is loaded into the process environment first. The
// returned config is already validated.
func Load(configFile, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix("S3PROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalized, err := ParseBackendType(string(cfg.Backend.Type))
	if err != nil {
		return nil, err
	}
	cfg.Backend.Type = normalized

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate enforces the configuration invariants. Explicit-credential
// mode with missing secrets is a fatal error here, at construction time,
// never a runtime fallback.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return interfaces.NewConfigError("server.listen_addr", "must not be empty")
	}
	if c.Server.TimeoutSecs <= 0 {
		return interfaces.NewConfigError("server.timeout_secs", "must be positive")
	}
	if c.Server.MaxBodySize <= 0 {
		return interfaces.NewConfigError("server.max_body_size", "must be positive")
	}
	if c.Backend.Bucket == "" {
		return interfaces.NewConfigError("backend.bucket", "bucket or container name is required")
	}

	switch c.Backend.Type {
	case BackendAWS:
		return c.Backend.AWS.validate()
	case BackendAzure:
		return c.Backend.Azure.validate()
	case BackendGCP:
		return c.Backend.GCP.validate()
	default:
		return interfaces.NewConfigError("backend.type", fmt.Sprintf("unknown backend type: %q", c.Backend.Type))
	}
}

func (c *AWSConfig) validate() error {
	if !c.UseManagedIdentity {
		if c.AccessKeyID == "" {
			return interfaces.NewConfigError("backend.aws.access_key_id", "required when use_managed_identity is false")
		}
		if c.SecretAccessKey == "" {
			return interfaces.NewConfigError("backend.aws.secret_access_key", "required when use_managed_identity is false")
		}
	}
	if strings.HasPrefix(c.Endpoint, "http://") && !c.AllowHTTP {
		return interfaces.NewConfigError("backend.aws.endpoint", "plaintext endpoint requires allow_http")
	}
	return nil
}

func (c *AzureConfig) validate() error {
	if c.AccountName == "" {
		return interfaces.NewConfigError("backend.azure.account_name", "account name is required")
	}
	if c.UseEmulator {
		return nil
	}
	if !c.UseManagedIdentity && c.AccessKey == "" {
		return interfaces.NewConfigError("backend.azure.access_key", "required when use_managed_identity is false")
	}
	return nil
}

func (c *GCPConfig) validate() error {
	if c.UseManagedIdentity {
		return nil
	}
	hasPath := c.ServiceAccountPath != ""
	hasKey := c.ServiceAccountKey != ""
	if !hasPath && !hasKey {
		return interfaces.NewConfigError("backend.gcp", "service_account_path or service_account_key required when use_managed_identity is false")
	}
	if hasPath && hasKey {
		return interfaces.NewConfigError("backend.gcp", "service_account_path and service_account_key are mutually exclusive")
	}
	return nil
}
