// Package daemon coordinates the long-running sitegrade process.
//
// NewRuntime wires configuration, the durable store, the credit ledger, the
// capture sidecar client, the LLM collaborators, report generation and the
// workflow manager. The daemon adds the HTTP API and flock-based locking to
// prevent multiple instances from sharing one data directory. Local CLI
// commands reuse the same Runtime without the daemon.
//
// Keep orchestration logic here: phase semantics live in workflow while the
// daemon focuses on startup, shutdown, and high level coordination.
package daemon
