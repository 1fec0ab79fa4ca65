// Command sitegrade is the operator CLI. It runs evaluations locally against
// the configured capture sidecar and LLM, inspects the credit ledger and
// evaluation history, renders reports, and serves the HTTP API.
package main
