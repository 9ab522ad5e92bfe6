package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
		check   func(t *testing.T, c *Config)
	}{
		{
			name:    "no AI provider",
			env:     map[string]string{"MONGODB_URI": "mongodb://localhost:27017"},
			wantErr: "at least one AI provider",
		},
		{
			name:    "mongo driver without uri",
			env:     map[string]string{"GROQ_API_KEY": "k"},
			wantErr: "MONGODB_URI is required",
		},
		{
			name: "defaults",
			env: map[string]string{
				"GEMINI_API_KEY": "k",
				"MONGODB_URI":    "mongodb://localhost:27017",
			},
			check: func(t *testing.T, c *Config) {
				if c.HTTPAddr != ":3001" {
					t.Errorf("HTTPAddr = %q", c.HTTPAddr)
				}
				if c.MaxFileSize != 10*1024*1024 {
					t.Errorf("MaxFileSize = %d", c.MaxFileSize)
				}
				if c.AITimeout != 60*time.Second {
					t.Errorf("AITimeout = %v", c.AITimeout)
				}
				if c.StorageProvider() != StorageGridFS {
					t.Errorf("StorageProvider = %q, want gridfs", c.StorageProvider())
				}
				if len(c.CORSOrigins) != 1 || c.CORSOrigins[0] != "http://localhost:3000" {
					t.Errorf("CORSOrigins = %v", c.CORSOrigins)
				}
			},
		},
		{
			name: "overrides",
			env: map[string]string{
				"GROQ_API_KEY":  "k",
				"MONGODB_URI":   "mongodb://db",
				"MAX_FILE_SIZE": "2048",
				"CORS_ORIGINS":  "https://a.example, ,https://b.example",
				"AI_TIMEOUT":    "5s",
			},
			check: func(t *testing.T, c *Config) {
				if c.MaxFileSize != 2048 {
					t.Errorf("MaxFileSize = %d", c.MaxFileSize)
				}
				if strings.Join(c.CORSOrigins, "|") != "https://a.example|https://b.example" {
					t.Errorf("CORSOrigins = %v", c.CORSOrigins)
				}
				if c.AITimeout != 5*time.Second {
					t.Errorf("AITimeout = %v", c.AITimeout)
				}
			},
		},
		{
			name: "memory driver needs blob storage",
			env: map[string]string{
				"GROQ_API_KEY":    "k",
				"DATABASE_DRIVER": "memory",
			},
			wantErr: "requires blob storage",
		},
		{
			name: "unknown driver",
			env: map[string]string{
				"GROQ_API_KEY":    "k",
				"DATABASE_DRIVER": "postgres",
			},
			wantErr: "DATABASE_DRIVER must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{
				"GEMINI_API_KEY", "GROQ_API_KEY", "GOOGLE_CLOUD_PROJECT", "DOCUMENT_AI_PROCESSOR_ID",
				"MONGODB_URI", "DATABASE_DRIVER", "APP_ENV", "BLOB_ACCESS_KEY_ID",
				"BLOB_SECRET_ACCESS_KEY", "BLOB_BUCKET", "MAX_FILE_SIZE", "CORS_ORIGINS", "AI_TIMEOUT",
			} {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestStorageProvider(t *testing.T) {
	blob := Config{BlobAccessKeyID: "id", BlobSecretAccessKey: "secret", BlobBucket: "pdfs"}

	tests := []struct {
		name string
		cfg  Config
		env  string
		want string
	}{
		{"no credentials in production", Config{}, "production", StorageGridFS},
		{"credentials in development", blob, "development", StorageGridFS},
		{"credentials in production", blob, "production", StorageBlob},
		{"mode flag is case insensitive", blob, "PRODUCTION", StorageBlob},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.AppEnv = tt.env
			if got := tt.cfg.StorageProvider(); got != tt.want {
				t.Errorf("StorageProvider() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGoogleClientOptions(t *testing.T) {
	c := &Config{}
	if opts := c.GoogleClientOptions(); len(opts) != 0 {
		t.Errorf("GoogleClientOptions() without credentials = %d options, want 0", len(opts))
	}
	c.GoogleCredentialsFile = "/etc/creds.json"
	if opts := c.GoogleClientOptions(); len(opts) != 1 {
		t.Errorf("GoogleClientOptions() with file = %d options, want 1", len(opts))
	}
	c.GoogleCredentialsJSON = `{"type":"service_account"}`
	if opts := c.GoogleClientOptions(); len(opts) != 1 {
		t.Errorf("GoogleClientOptions() with json = %d options, want 1", len(opts))
	}
}
