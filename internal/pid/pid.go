// Package pid guards against running two copies of the same process.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/DaveBerkeley/elster-meter/internal/errors"
)

func path(name string) string {
	return filepath.Join(os.TempDir(), name+".pid")
}

// Write writes the current process ID to the PID file for name. It fails
// with ErrAlreadyRunning if the file names a live process.
func Write(name string) error {
	errFactory := errors.New()
	p := path(name)

	if data, err := os.ReadFile(p); err == nil {
		if other, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && other != os.Getpid() {
			if process, err := os.FindProcess(other); err == nil {
				if process.Signal(syscall.Signal(0)) == nil {
					return errFactory.WithData(errors.ErrAlreadyRunning, other)
				}
			}
		}
	}

	if err := os.WriteFile(p, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file for name.
func Remove(name string) error {
	errFactory := errors.New()
	p := path(name)

	if _, err := os.Stat(p); os.IsNotExist(err) {
		return nil
	}

	if err := os.Remove(p); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}
