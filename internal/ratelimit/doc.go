// Package ratelimit enforces per-client, per-route request quotas on the public API.
//
// # Fixed window counters, in memory, single instance
//
// Each request is attributed to a Key (client address + route path). The Limiter keeps one
// Counter per key and rejects once a key has made more than Policy.Max requests inside
// Policy.Window. The window is a fixed bucket: once it has expired the next request starts a
// new one at count 1, it does not slide.
//
// Counters live in a Store. MemoryStore is process local, the Janitor sweeps it on a fixed
// cadence so keys nobody touches for an hour are dropped and memory stays bounded.
//
// FloodGuard is the coarse per-IP token bucket that sits in front of every route, the
// Limiter middleware is bound per route group with its own Policy.
//
// What this does NOT do:
//   - share counts between instances, each process limits on its own
//   - distinguish clients behind the same NAT or proxy, they share a bucket
//   - give clients with no resolvable address their own bucket, they all share "unknown"
package ratelimit
