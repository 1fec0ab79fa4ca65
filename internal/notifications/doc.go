// Package notifications delivers evaluation events via pluggable notifiers.
//
// NewService fans a Publish call out to ntfy (when a topic is configured) and
// Discord (when a bot token and channel are configured). With neither
// configured it degrades to a no-op. Individual events can be switched off in
// the [notifications] section of config.toml.
//
// Workflow code depends only on the Service interface.
package notifications
