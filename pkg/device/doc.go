// Package device implements the accepting side of a brick link.
//
// A Manager listens on TCP (port 6174 by default), optionally announces
// itself over mDNS, and turns each inbound connection into an unopened
// socket.Socket. No handshake is performed: the controller's first
// command is the first message on the wire.
//
//	mgr := device.NewManager(device.Config{Name: "Ultron", Address: "0016531B594D"})
//	if err := mgr.Start(ctx); err != nil { ... }
//	defer mgr.Stop()
//
//	sock, err := mgr.WaitForConnection(ctx)
//	sock.AddListener(handler)
//	sock.Open(ctx)
//
// Accept does the same in one call and closes the connection if the
// listeners cannot be registered or the socket cannot be opened.
package device
