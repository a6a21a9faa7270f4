package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func defaults() *Config {
	c := &Config{}
	c.LoadDefaults()
	return c
}

func Test_parseJson(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	t.Setenv(EnvConfigFile, "")

	dir := t.TempDir()
	full := writeTempJSON(t, dir, "relay.json", map[string]any{
		"endpoint_addr_grpc":              "relay.example:7443",
		"storage":                         "memory",
		"database_dsn":                    "postgres://relay@db/notes",
		"secret_key":                      "jwt-secret",
		"access_token_validity_duration":  "1m",
		"refresh_token_validity_duration": "72h",
		"object_store":                    "memory",
		"s3_root_user":                    "minio",
		"s3_root_password":                "minio-pass",
		"s3_bucket":                       "public-notes",
		"s3_region":                       "eu-north-1",
		"s3_base_endpoint":                "http://minio:9000/",
		"pull_page_limit":                 250,
	})
	fullWant := &Config{
		EndpointAddrGRPC:             "relay.example:7443",
		Storage:                      StorageMemory,
		DatabaseDSN:                  "postgres://relay@db/notes",
		SecretKey:                    "jwt-secret",
		AccessTokenValidityDuration:  time.Minute,
		RefreshTokenValidityDuration: 72 * time.Hour,
		ObjectStore:                  StorageMemory,
		S3RootUser:                   "minio",
		S3RootPassword:               "minio-pass",
		S3Bucket:                     "public-notes",
		S3Region:                     "eu-north-1",
		S3BaseEndpoint:               "http://minio:9000/",
		PullPageLimit:                250,
	}

	partial := writeTempJSON(t, dir, "partial.json", map[string]any{
		"storage":         "memory",
		"pull_page_limit": 10,
	})
	partialWant := defaults()
	partialWant.Storage = StorageMemory
	partialWant.PullPageLimit = 10

	tests := []struct {
		name string
		args []string
		env  string
		want *Config
	}{
		{name: "every key from -config", args: []string{"-config", full}, want: fullWant},
		{name: "partial file from -c keeps defaults", args: []string{"-c", partial}, want: partialWant},
		{name: "file from env", env: partial, want: partialWant},
		{name: "nothing to load", want: defaults()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = append([]string{"testbin"}, tt.args...)
			t.Setenv(EnvConfigFile, tt.env)

			cfg := defaults()
			parseJson(cfg)

			if diff := cmp.Diff(tt.want, cfg); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("invalid JSON panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ not json`), 0o600))
		os.Args = []string{"testbin", "-config", bad}

		assert.Panics(t, func() { parseJson(&Config{}) })
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(dir, "absent.json")}

		assert.Panics(t, func() { parseJson(&Config{}) })
	})
}
