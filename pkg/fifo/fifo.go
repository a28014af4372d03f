package fifo

import (
	"io/fs"
	"os"

	"github.com/billm/baaaht/pipechan/pkg/types"
	"golang.org/x/sys/unix"
)

// Mode is the permission set requested for every FIFO node.
const Mode uint32 = 0o666

// Provision creates a FIFO special file at path. It performs no existence
// check; if the node is already there the returned error satisfies
// errors.Is(err, fs.ErrExist). Other OS failures are returned unchanged
// inside a *fs.PathError.
func Provision(path string) error {
	if err := unix.Mkfifo(path, Mode); err != nil {
		return &fs.PathError{Op: "mkfifo", Path: path, Err: err}
	}
	return nil
}

// IsFIFO reports whether the node at path is a named pipe.
func IsFIFO(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return fi.Mode()&fs.ModeNamedPipe != 0, nil
}

// Ensure makes sure a FIFO exists at path, creating it when absent. A node
// created concurrently by another process counts as success. It fails if
// path exists but is not a FIFO.
func Ensure(path string) error {
	if path == "" {
		return types.NewError(types.ErrCodeInvalidArgument, "fifo path cannot be empty")
	}

	ok, err := IsFIFO(path)
	if Classify(err) == ClassMissingNode {
		if err := Provision(path); err != nil && Classify(err) != ClassAlreadyExists {
			return types.WrapError(types.ErrCodeSystem, "failed to create fifo "+path, err)
		}
		ok, err = IsFIFO(path)
	}
	if err != nil {
		return types.WrapError(types.ErrCodeSystem, "failed to stat "+path, err)
	}
	if !ok {
		return types.NewError(types.ErrCodeInvalidArgument, "path exists and is not a fifo: "+path)
	}
	return nil
}
