// Package imagecache resolves images addressed by remote URL through three
// tiers: an in-process map of decoded images, a private on-disk directory of
// raw bytes (one file per address, named by percent-encoding the address),
// and a network fallback through an injected fetch.Fetcher. Every successful
// read from a slower tier is written through to the faster ones; disk writes
// go through temp file + rename so an entry is replaced atomically.
//
// Failures are reported as *Error with a Kind; Describe renders them for
// humans. Cancellation is reported as KindTaskCancelled so callers can tell
// "no answer yet" apart from a real failure.
//
// Concurrent cold loads of one address share a single resolution, and
// Refresh bumps a generation counter so that loads started before it cannot
// write stale entries back.
package imagecache
