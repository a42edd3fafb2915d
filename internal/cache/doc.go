// Package cache holds the in-process slot store and the cache-or-fetch
// coordinator every data route goes through. A slot pairs the last successful
// upstream payload with the time it was fetched; the coordinator serves it
// while it is younger than the caller's TTL, refreshes it otherwise, and keeps
// serving the previous payload when a refresh fails. Nothing here survives a
// restart and nothing is shared between processes: each worker owns its slots.
package cache
