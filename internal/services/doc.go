// Package services defines shared utilities consumed by the evaluation workflow
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session, user, evaluation, phase, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so failures keep their
//     category (validation, collaborator, balance, timeout, storage) across
//     layers, and Classify to turn them into stable API codes.
//
// Use these helpers when wiring new collaborators so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
