// Package config loads application configuration from QUILL_*
// environment variables and validates it before anything starts.
package config
