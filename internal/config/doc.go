// Package config defines the modsync configuration schema and its YAML
// loader.
//
// Configuration lives in a single directory (default ~/.config/modsync)
// containing config.yaml. Built-in defaults are applied first, then the file
// overlays them; CLI flags may override individual values on top. A missing
// config.yaml is not an error, a malformed one is.
package config
