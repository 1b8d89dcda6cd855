package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/cometbft/cometbft/libs/log"
	cometos "github.com/cometbft/cometbft/libs/os"
	"github.com/cometbft/cometbft/libs/service"
)

// readPidFile returns zero when no pid file exists.
func readPidFile(pidFilePath string) (int, error) {
	bz, err := os.ReadFile(pidFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("unexpected error reading PID file %s: %w", pidFilePath, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(bz)))
	if err != nil {
		return 0, fmt.Errorf("unexpected error parsing PID from PID file: %s. manual deletion of PID file required. %w",
			pidFilePath, err)
	}
	return pid, nil
}

// writePidFile fails if another process created the pid file first.
func writePidFile(pidFilePath string) error {
	f, err := os.OpenFile(pidFilePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("error opening PID file: %s. %w", pidFilePath, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return fmt.Errorf("error writing to PID file: %s. %w", pidFilePath, err)
	}
	return nil
}

// RequireNotRunning returns an error while the process recorded in the pid file is alive.
// A pid file left behind by an unclean shutdown is removed.
func RequireNotRunning(logger log.Logger, pidFilePath string) error {
	pid, err := readPidFile(pidFilePath)
	if err != nil || pid == 0 {
		return err
	}

	if pid == os.Getpid() {
		panic(fmt.Errorf("error checking PID file: %s, PID: %d matches current process",
			pidFilePath, pid))
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("error checking pid %d: %w", pid, err)
	}

	err = process.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return fmt.Errorf("imasigner is already running on PID: %d", pid)
	case errors.Is(err, os.ErrProcessDone):
		logger.Error(
			"Unclean shutdown detected, removing stale PID file",
			"pid", pid,
			"pid_file", pidFilePath,
		)
		if err := os.Remove(pidFilePath); err != nil {
			return fmt.Errorf("failed to delete pid file %s: %w", pidFilePath, err)
		}
		return nil
	}

	var errno syscall.Errno
	if errors.As(err, &errno) && errno == syscall.EPERM {
		return fmt.Errorf("permission denied accessing imasigner PID: %d", pid)
	}
	return fmt.Errorf("unexpected error while signaling imasigner PID %d: %w", pid, err)
}

// WaitAndTerminate records the pid file, then blocks until the process is signalled and
// stops services. It panics if the pid file was created concurrently.
func WaitAndTerminate(logger log.Logger, services []service.Service, pidFilePath string) {
	if err := writePidFile(pidFilePath); err != nil {
		panic(err)
	}

	done := make(chan struct{})
	cometos.TrapSignal(logger, func() {
		if err := os.Remove(pidFilePath); err != nil {
			fmt.Printf("Error removing PID file: %v\n", err)
		}
		for _, s := range services {
			if err := s.Stop(); err != nil {
				panic(err)
			}
		}
		close(done)
	})
	<-done
}
