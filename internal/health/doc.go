// Package health provides composable probes and the plain-text handlers
// served for liveness and readiness.
//
// [All] joins every failing probe so a 503 names each dependency that is down.
// [Ping] wraps a dependency ping, such as the analytics database, with a
// deadline. [ShutdownGate] fails readiness as soon as shutdown starts so the
// load balancer stops routing before in-flight requests drain.
package health
