// Package port finds free ports in the IANA registered range (1024-49151).
//
// The Scanner probes a single port by binding a transient listener and
// closing it right away. The Finder drives the Scanner: it draws random
// candidates from an injected source with a bounded number of attempts,
// or walks the range from either end.
//
// A port reported as free is not reserved. Another process can bind it
// between the probe and the caller's own bind; callers that cannot accept
// that race must retry at the call site.
package port
