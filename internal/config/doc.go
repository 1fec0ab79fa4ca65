// Package config loads, normalizes, and validates sitegrade configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a .env overlay, and honours environment
// fallbacks such as OPENROUTER_API_KEY. The Config type centralizes every knob
// the daemon and CLI need: storage, collaborators, pricing, and orchestration
// limits are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, parsed prices, and clear validation errors.
package config
