package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/s3proxy/interfaces"
)

func TestParseBackendType(t *testing.T) {
	tests := []struct {
		input    string
		expected BackendType
		wantErr  bool
	}{
		{input: "aws", expected: BackendAWS},
		{input: "s3", expected: BackendAWS},
		{input: "AWS", expected: BackendAWS},
		{input: "azure", expected: BackendAzure},
		{input: "gcp", expected: BackendGCP},
		{input: "gcs", expected: BackendGCP},
		{input: "google", expected: BackendGCP},
		{input: "minio", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBackendType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("S3PROXY_BACKEND_BUCKET", "data")

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.ListenAddr)
	assert.Equal(t, 300, cfg.Server.TimeoutSecs)
	assert.Equal(t, int64(5*1024*1024*1024), cfg.Server.MaxBodySize)
	assert.Equal(t, BackendAWS, cfg.Backend.Type)
	assert.Equal(t, "data", cfg.Backend.Bucket)
	assert.Equal(t, "", cfg.Backend.Prefix)
	assert.True(t, cfg.Backend.AWS.UseManagedIdentity)
	assert.Equal(t, "us-east-1", cfg.Backend.AWS.Region)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromFile(t *testing.T) {
	content := `
log_level = "debug"

[server]
listen_addr = "127.0.0.1:9000"
timeout_secs = 60

[backend]
type = "gcs"
bucket = "my-bucket"
prefix = "tenant1/"

[backend.gcp]
use_managed_identity = false
service_account_path = "/etc/gcp/key.json"
`
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.ListenAddr)
	assert.Equal(t, 60, cfg.Server.TimeoutSecs)
	assert.Equal(t, BackendGCP, cfg.Backend.Type, "gcs alias should normalize to gcp")
	assert.Equal(t, "my-bucket", cfg.Backend.Bucket)
	assert.Equal(t, "tenant1/", cfg.Backend.Prefix)
	assert.False(t, cfg.Backend.GCP.UseManagedIdentity)
	assert.Equal(t, "/etc/gcp/key.json", cfg.Backend.GCP.ServiceAccountPath)
}

func TestEnvOverridesFile(t *testing.T) {
	content := `
[backend]
type = "aws"
bucket = "from-file"
`
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("S3PROXY_BACKEND_BUCKET", "from-env")
	t.Setenv("S3PROXY_SERVER_TIMEOUT_SECS", "30")

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Backend.Bucket, "environment must win over file values")
	assert.Equal(t, 30, cfg.Server.TimeoutSecs)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("S3PROXY_BACKEND_BUCKET=dotenv-bucket\n"), 0644))

	cfg, err := Load("", path)
	require.NoError(t, err)
	assert.Equal(t, "dotenv-bucket", cfg.Backend.Bucket)
}

func TestValidateExplicitCredentials(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server: ServerConfig{
				ListenAddr:  "0.0.0.0:8080",
				TimeoutSecs: 300,
				MaxBodySize: 1024,
			},
			Backend: BackendConfig{
				Type:   BackendAWS,
				Bucket: "data",
				AWS:    AWSConfig{UseManagedIdentity: true, Region: "us-east-1"},
				Azure:  AzureConfig{AccountName: "acct", UseManagedIdentity: true},
				GCP:    GCPConfig{UseManagedIdentity: true},
			},
			LogLevel: "info",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "managed identity needs no secrets",
			mutate: func(c *Config) {},
		},
		{
			name: "aws explicit without keys fails",
			mutate: func(c *Config) {
				c.Backend.AWS.UseManagedIdentity = false
			},
			wantErr: true,
		},
		{
			name: "aws explicit missing secret key fails",
			mutate: func(c *Config) {
				c.Backend.AWS.UseManagedIdentity = false
				c.Backend.AWS.AccessKeyID = "AKIA123"
			},
			wantErr: true,
		},
		{
			name: "aws explicit with both keys passes",
			mutate: func(c *Config) {
				c.Backend.AWS.UseManagedIdentity = false
				c.Backend.AWS.AccessKeyID = "AKIA123"
				c.Backend.AWS.SecretAccessKey = "secret"
			},
		},
		{
			name: "aws plaintext endpoint requires allow_http",
			mutate: func(c *Config) {
				c.Backend.AWS.Endpoint = "http://minio.local:9000"
			},
			wantErr: true,
		},
		{
			name: "aws plaintext endpoint with allow_http passes",
			mutate: func(c *Config) {
				c.Backend.AWS.Endpoint = "http://minio.local:9000"
				c.Backend.AWS.AllowHTTP = true
			},
		},
		{
			name: "azure explicit without access key fails",
			mutate: func(c *Config) {
				c.Backend.Type = BackendAzure
				c.Backend.Azure.UseManagedIdentity = false
			},
			wantErr: true,
		},
		{
			name: "azure missing account name fails",
			mutate: func(c *Config) {
				c.Backend.Type = BackendAzure
				c.Backend.Azure.AccountName = ""
			},
			wantErr: true,
		},
		{
			name: "azure emulator bypasses credential checks",
			mutate: func(c *Config) {
				c.Backend.Type = BackendAzure
				c.Backend.Azure.UseManagedIdentity = false
				c.Backend.Azure.UseEmulator = true
			},
		},
		{
			name: "gcp explicit without any secret fails",
			mutate: func(c *Config) {
				c.Backend.Type = BackendGCP
				c.Backend.GCP.UseManagedIdentity = false
			},
			wantErr: true,
		},
		{
			name: "gcp explicit with both path and key fails",
			mutate: func(c *Config) {
				c.Backend.Type = BackendGCP
				c.Backend.GCP.UseManagedIdentity = false
				c.Backend.GCP.ServiceAccountPath = "/etc/key.json"
				c.Backend.GCP.ServiceAccountKey = `{"type":"service_account"}`
			},
			wantErr: true,
		},
		{
			name: "gcp explicit with inline key passes",
			mutate: func(c *Config) {
				c.Backend.Type = BackendGCP
				c.Backend.GCP.UseManagedIdentity = false
				c.Backend.GCP.ServiceAccountKey = `{"type":"service_account"}`
			},
		},
		{
			name: "missing bucket fails",
			mutate: func(c *Config) {
				c.Backend.Bucket = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				var cfgErr *interfaces.ConfigError
				assert.ErrorAs(t, err, &cfgErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
