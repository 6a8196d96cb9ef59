// Package controller implements the connecting side of a brick link.
//
// A Manager finds bricks and creates sockets to them:
//
//	mgr := controller.NewManager(controller.Config{Browser: discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())})
//
//	peer, _ := mgr.GetNXT("Ultron", "00:16:53:1b:59:4d")
//	sock, _ := mgr.CreateConnection(peer)
//	sock.AddListener(handler)
//	if err := sock.Open(ctx); err != nil { ... }
//
// A peer is resolved to a dial address when the socket opens, in order:
// the peer's own Host or Addrs, the static peer table, then a discovery
// lookup by hardware address.
//
// Link wraps this in an auto-reconnecting connection: each time the
// socket drops, a fresh socket is created and opened with exponential
// backoff (see package connection).
package controller
