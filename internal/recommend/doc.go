// Package recommend runs the terminal Recommendations phase: one narrative
// plus a competitor screenshot per suggested URL, delivered as an ordered
// stream of typed events.
//
// Competitor fetches run concurrently up to a cap. Each task races its own
// timer; expiry marks only that task as failed with reason "timeout" and
// cancels its fetch. A separate stream timeout ends the whole stream with
// services.ErrStreamTimeout and no Done event.
package recommend
