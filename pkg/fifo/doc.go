// Package fifo creates the filesystem node behind a named-pipe channel and
// classifies the OS errors raised while opening, reading and writing it.
//
// Provision calls mkfifo(3) with mode 0666 (masked by the process umask) and
// returns whatever the OS reports, without checking for an existing node
// first. The open loops in package pipe call it only after an open attempt
// failed because the node was missing.
//
// Classify turns an error into a Class so retry policies can branch on the
// condition instead of on raw errno values:
//
//	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
//	switch fifo.Classify(err) {
//	case fifo.ClassNone:
//	    // opened
//	case fifo.ClassNoReceiver:
//	    // no reader yet, back off and retry
//	case fifo.ClassMissingNode:
//	    err = fifo.Provision(path)
//	default:
//	    return err
//	}
package fifo
