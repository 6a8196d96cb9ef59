// Package connection keeps a controller's link to a brick alive.
//
// A Manager owns a ConnectFunc that establishes one connection (for the
// controller, opening a fresh socket). After the first successful Connect,
// a reported loss puts the manager into RECONNECTING and a background loop
// retries with exponential backoff until a connection succeeds or the
// manager is closed.
//
// # Backoff
//
// Delays start at 1s and double up to a 60s ceiling:
//
//	1s, 2s, 4s, 8s, 16s, 32s, 60s, 60s, ...
//
// Each delay gets up to 25% random jitter on top, so a group of
// controllers that lost the same device do not retry in lockstep:
//
//	delay = base + random(0, base*0.25)
//
// A successful connection resets the sequence.
package connection
