// Package pipe implements a single-reader/single-writer message channel on
// top of a named pipe (FIFO).
//
// A Sender owns the write end and a Receiver owns the read end of the FIFO at
// a filesystem path. Either side creates the FIFO when it finds it missing,
// and both sides reconnect on their own when the peer goes away:
//
//   - OpenSender retries every backoff interval (50ms by default) while no
//     receiver holds the read end. It never gives up on its own.
//   - Send reopens the write end and writes the frame again when the
//     receiver disconnected (broken pipe).
//   - OpenReceiver blocks until a writer opens the pipe.
//   - Receive reopens the read end when the writer closed before a complete
//     frame header arrived. A writer that disappears mid-payload is a fatal
//     error because the frame cannot be resumed.
//
// Messages travel as frames: a native-word little-endian length header
// followed by the payload (see package frame). Callers only ever see success
// or a *types.Error; transient pipe conditions are absorbed.
//
// Example usage:
//
//	// reader process
//	rx, err := pipe.OpenReceiver(ctx, "/tmp/test.fifo")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rx.Close()
//
//	msg, err := rx.Receive(ctx)
//
//	// writer process
//	tx, err := pipe.OpenSender(ctx, "/tmp/test.fifo")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tx.Close()
//
//	if err := tx.Send(ctx, []byte("hello")); err != nil {
//	    log.Fatal(err)
//	}
//
// Endpoints are not safe for concurrent Send or Receive calls. Stats, State
// and Close may be called from any goroutine; closing a Receiver unblocks a
// pending Receive, except while it is waiting inside the blocking open of
// the read end.
package pipe
