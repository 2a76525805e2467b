package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/berrythewa/clipsync/internal/ipc"
	"go.uber.org/zap"
)

// EnvDaemon is set in the environment of a detached daemon
const EnvDaemon = "CLIPSYNC_DAEMON"

// ErrNotRunning is returned when no live daemon owns the pid file
var ErrNotRunning = errors.New("daemon is not running")

// overridable in tests
var (
	startupTimeout = 10 * time.Second
	stopTimeout    = 10 * time.Second
	pollEvery      = 50 * time.Millisecond
)

// WritePIDFile records pid at path
func WritePIDFile(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create pid directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0600); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}

// ReadPIDFile returns the pid stored at path
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in file: %q", string(data))
	}
	return pid, nil
}

// RemovePIDFile deletes the pid file, ignoring a missing one
func RemovePIDFile(path string) {
	os.Remove(path)
}

// Running returns the daemon pid when the pid file names a live process.
// A stale pid file is removed.
func Running(pidFile string) (int, bool) {
	pid, err := ReadPIDFile(pidFile)
	if err != nil {
		return 0, false
	}
	if !processAlive(pid) {
		RemovePIDFile(pidFile)
		return 0, false
	}
	return pid, true
}

// Start launches executable with args detached from the terminal and waits
// until its IPC socket answers. Output goes to logFile.
func Start(executable string, args []string, logFile, pidFile, socketPath string, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pid, ok := Running(pidFile); ok {
		return pid, fmt.Errorf("daemon already running with PID %d", pid)
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return 0, fmt.Errorf("failed to create log directory: %w", err)
	}
	logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer logF.Close()

	cmd := exec.Command(executable, args...)
	cmd.Stdout = logF
	cmd.Stderr = logF
	cmd.Stdin = nil
	cmd.Env = append(os.Environ(), EnvDaemon+"=1")
	detach(cmd)

	logger.Info("Starting daemon process", zap.String("executable", executable), zap.Strings("args", args))
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon process: %w", err)
	}
	pid := cmd.Process.Pid

	// reap the child if it exits during startup so processAlive sees it gone
	exited := make(chan struct{})
	go func() {
		cmd.Wait()
		close(exited)
	}()

	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-exited:
			return 0, fmt.Errorf("daemon exited during startup, see %s", logFile)
		default:
		}
		if ipc.Available(socketPath) {
			logger.Info("Daemon started", zap.Int("pid", pid))
			return pid, nil
		}
		time.Sleep(pollEvery)
	}
	return pid, fmt.Errorf("daemon did not open %s within %s", socketPath, startupTimeout)
}

// Stop sends a termination signal to the daemon and waits for it to exit
func Stop(pidFile string) (int, error) {
	pid, ok := Running(pidFile)
	if !ok {
		return 0, ErrNotRunning
	}
	if err := terminate(pid); err != nil {
		return pid, fmt.Errorf("failed to signal process %d: %w", pid, err)
	}

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			RemovePIDFile(pidFile)
			return pid, nil
		}
		time.Sleep(pollEvery)
	}
	return pid, fmt.Errorf("process %d did not exit within %s", pid, stopTimeout)
}
