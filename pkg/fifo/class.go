package fifo

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

// Class is the OS error class of a failed pipe operation.
type Class int

const (
	// ClassNone is the class of a nil error.
	ClassNone Class = iota
	// ClassNoReceiver: the write end was opened while nobody holds the read end (ENXIO).
	ClassNoReceiver
	// ClassMissingNode: the FIFO does not exist (ENOENT).
	ClassMissingNode
	// ClassBrokenPipe: a write hit a pipe whose read end is closed (EPIPE).
	ClassBrokenPipe
	// ClassStreamClosed: a read reached end of stream because the writer went away.
	ClassStreamClosed
	// ClassAlreadyExists: mkfifo lost a creation race (EEXIST).
	ClassAlreadyExists
	// ClassOther is everything else. It is never retried.
	ClassOther
)

var classNames = map[Class]string{
	ClassNone:          "none",
	ClassNoReceiver:    "no-receiver",
	ClassMissingNode:   "missing-node",
	ClassBrokenPipe:    "broken-pipe",
	ClassStreamClosed:  "stream-closed",
	ClassAlreadyExists: "already-exists",
	ClassOther:         "other",
}

// String returns the class name.
func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return "unknown"
}

// Classify maps err onto a Class. Wrapped errors are inspected with errors.Is.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ClassStreamClosed
	case errors.Is(err, unix.ENXIO):
		return ClassNoReceiver
	case errors.Is(err, unix.ENOENT):
		return ClassMissingNode
	case errors.Is(err, unix.EPIPE):
		return ClassBrokenPipe
	case errors.Is(err, unix.EEXIST):
		return ClassAlreadyExists
	default:
		return ClassOther
	}
}
