// Package announce implements the per-session origin/announce bus: a
// single-producer, single-consumer queue of (path, active) events with
// the coalescing rule from the MoQ session engine's announcement
// propagation contract.
package announce
