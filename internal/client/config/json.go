package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophnotes/internal/flagx"
	"github.com/dmitrijs2005/gophnotes/internal/timex"
)

// EnvConfigFile names the environment variable consulted for the config
// file path when no -c/-config flag is given.
const EnvConfigFile = "GOPHNOTES_CONFIG"

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "3s" or as integer nanoseconds. After parsing, values
// are copied into the runtime Config (which uses time.Duration).
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	DatabasePath        string         `json:"database_path"`
	SyncBatchSize       int            `json:"sync_batch_size"`
	ConflictThreshold   timex.Duration `json:"conflict_threshold"`
	DeviceName          string         `json:"device_name"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// The file path comes from -c or -config, or from GOPHNOTES_CONFIG when
// neither flag is given; with no path nothing is loaded. Only keys present
// with a non-zero value override cfg. Read or unmarshal errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:], EnvConfigFile)
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.SyncBatchSize > 0 {
		cfg.SyncBatchSize = jc.SyncBatchSize
	}
	if jc.ConflictThreshold.Duration > 0 {
		cfg.ConflictThreshold = jc.ConflictThreshold.Duration
	}
	if jc.DeviceName != "" {
		cfg.DeviceName = jc.DeviceName
	}
}
