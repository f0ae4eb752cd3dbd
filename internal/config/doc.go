// Package config provides configuration loading, merging, and path management for worldkeeper.
//
// # Configuration Loading
//
// Load starts from the built-in defaults and decodes each source on top of
// the previous result, so a file only needs to name the settings it changes:
//
//  1. Global config ($XDG_CONFIG_HOME/worldkeeper/config.yml)
//  2. Directory config (<dir>/config.yml)
//  3. Directory JSONC config (<dir>/worldkeeper.jsonc)
//  4. WORLDKEEPER_CONFIG file
//  5. <dir>/.env and WORLDKEEPER_* environment variables
//
// # Supported Formats
//
//   - config.yml - YAML, decoded with gopkg.in/yaml.v3
//   - worldkeeper.jsonc - JSON with comments, processed using tidwall/jsonc;
//     {env:VAR} placeholders are replaced with environment values
//
// # Durations
//
// The idle grace period is written as HH:MM:SS ("01:00:00") and parsed with
// ParseClock. Load rejects malformed values.
//
// # Paths
//
// GetPaths follows the XDG base directory layout. Worlds, backups and
// templates live below the data directory unless the configuration names
// other locations (see Paths.Resolve).
package config
