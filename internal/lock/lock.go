package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const fileName = "LOCK"

// HeldError is returned when another daemon already owns the profile.
type HeldError struct {
	Owner Owner
	Path  string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("profile is in use by PID %d since %s (%s)",
		e.Owner.PID, e.Owner.Since.Format(time.RFC3339), e.Path)
}

// Owner describes the process recorded in a lock file.
type Owner struct {
	PID   int
	Since time.Time
}

// Lock is an exclusive flock on a profile directory.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the profile lock without blocking.
func Acquire(profileDir string) (*Lock, error) {
	if err := os.MkdirAll(profileDir, 0700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	path := filepath.Join(profileDir, fileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		owner, _ := ReadOwner(profileDir)
		return nil, &HeldError{Owner: owner, Path: path}
	}

	if err := writeOwner(f, Owner{PID: os.Getpid(), Since: time.Now().UTC()}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock owner: %w", err)
	}
	return &Lock{file: f, path: path}, nil
}

// ReadOwner parses the lock file of profileDir without taking the lock.
func ReadOwner(profileDir string) (Owner, error) {
	data, err := os.ReadFile(filepath.Join(profileDir, fileName))
	if err != nil {
		return Owner{}, err
	}
	var o Owner
	for _, line := range strings.Split(string(data), "\n") {
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			o.PID, _ = strconv.Atoi(val)
		case "time":
			o.Since, _ = time.Parse(time.RFC3339, val)
		}
	}
	if o.PID == 0 {
		return o, errors.New("lock file has no pid")
	}
	return o, nil
}

// Release drops the lock and removes the file. Safe on a nil or released lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func writeOwner(f *os.File, o Owner) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "pid=%d\ntime=%s\n", o.PID, o.Since.Format(time.RFC3339))
	return err
}
