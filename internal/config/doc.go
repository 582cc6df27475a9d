// Package config handles configuration loading for netsync-master and
// netsync-agent.
//
// # Master Configuration
//
// The master reads YAML. Default location (in order):
//
//  1. Path from --config
//  2. Path from NETSYNC_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/netsync/master.yaml (~/.config/netsync/master.yaml)
//
// A missing file at the default location is not an error; LoadOptional
// returns Default().
//
//	server:
//	  port: 9000                 # agent port (WATCH_PORT / --port)
//	  listen_host: "0.0.0.0"
//	  health_addr: ":8080"       # optional HTTP status endpoints
//	  grpc_health_addr: ":8081"  # optional gRPC health service
//
//	watch:
//	  path: "/srv/repo"          # required (WATCH_PATH / --repo-path)
//	  debounce: "250ms"
//
//	agents:
//	  heartbeat_interval: "5s"
//	  heartbeat_timeout: "10s"
//	  read_timeout: "10s"
//	  write_timeout: "2s"
//
//	database:
//	  path: "netsync.db"         # empty disables the event ledger
//
//	logging:
//	  level: "info"              # debug, info, warn, error
//	  format: "text"             # text, json
//	  file: "netsync.log"        # empty logs to stdout only
//
//	tailscale:
//	  enabled: false
//	  hostname: "netsync-master"
//	  auth_key: "${TS_AUTHKEY}"
//
// # Agent Configuration
//
// The agent reads an optional TOML file:
//
//	master_addr = "10.0.0.5:9000"   # MASTER_ADDR / --master-addr
//	hostname = "web-01"             # CLIENT_HOSTNAME / --client-hostname
//	reconnect_delay = "5s"
//	read_timeout = "10s"
//	on_update = "git -C /srv/app pull"
//	on_custom = "/usr/local/bin/netsync-custom"
//
//	[logging]
//	level = "debug"
//
// # Environment Variable Expansion
//
// Both formats expand ${VAR_NAME} before parsing. Unset variables expand to
// the empty string.
//
// # Durations
//
// Duration values use time.ParseDuration syntax ("250ms", "5s", "1m").
package config
