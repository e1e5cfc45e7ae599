// Package config loads the lendingctl configuration.
//
// Values are resolved in three layers: built-in defaults, an optional YAML file, then LENDING_*
// environment variables. Command line flags are applied on top by the cli package.
package config
