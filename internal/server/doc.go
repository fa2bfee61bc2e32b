// Package server hosts the Fiber HTTP service, the request middleware chain,
// and the cache registry that maps configured [[Cache]] entries to
// imagecache instances. Handlers for the image endpoint live in
// internal/proxy and diagnostics routes in internal/server/routes; both take
// their dependencies explicitly so tests can swap in fakes.
package server
