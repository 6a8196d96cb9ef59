// Package socket implements the message channel between a controller and
// an NXT brick.
//
// A Socket wraps a transport.Connector. Open establishes the stream and
// starts one receive goroutine; Close tears the stream down. Everything a
// Listener observes comes from that goroutine, in stream order:
//
//	OnConnect
//	OnCommandReceived   (zero or more)
//	OnDisconnect        (exactly once)
//
// A Socket is single-use. After it closes, create a new one to reconnect.
//
// # Listener callbacks
//
// Callbacks run on the receive goroutine while the listener registry lock
// is held. They may call SendCommand and Close on the socket, but must not
// call AddListener or RemoveListener on the same socket synchronously.
// A slow callback delays delivery of every later message.
//
// # Example
//
//	s := socket.New(&transport.Dialer{Address: "brick.local:6174"}, socket.Config{})
//	s.AddListener(&socket.ListenerFuncs{
//		CommandReceived: func(s *socket.Socket, cmd command.Command) {
//			fmt.Println("received", cmd)
//		},
//	})
//	if err := s.Open(ctx); err != nil {
//		return err
//	}
//	defer s.Close()
//	s.SendCommand(command.New("MOVE", "10", "20"))
package socket
