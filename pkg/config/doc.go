// Package config loads application configuration from WARDEN_
// environment variables, optionally merged with a YAML role seed file.
package config
