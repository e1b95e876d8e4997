// Package config loads auctionwatch configuration from YAML.
//
// Loading:
//   - ${VAR} references are expanded from the environment before parsing
//   - Omitted fields fall back to the Default* constants
//   - Validate reports the first invalid field by its YAML path
package config
