// Package config provides the configuration of a crawl run: defaults,
// validation, the YAML configuration file, credentials from the environment
// and the XDG data directory.
package config
