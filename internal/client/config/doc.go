// Package config loads runtime configuration for the GophNotes CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the relay gRPC endpoint
//	-i int      online status check interval (seconds)
//	-d string   local database path
//	-b int      sync batch size
//	-n string   device name
//
// # JSON schema
//
// Durations use timex.Duration, so values can be either strings like "3s"
// or integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "online_check_interval": "3s",
//	  "database_path": "gophnotes.db",
//	  "sync_batch_size": 50,
//	  "conflict_threshold": "1m",
//	  "device_name": "laptop"
//	}
//
// The conflict threshold is only configurable through JSON.
package config
