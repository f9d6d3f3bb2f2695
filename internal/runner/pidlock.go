package runner

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// acquirePIDLock enforces one runner per data directory. A lock file naming
// a live process blocks startup; a stale or corrupt file is removed and
// taken over. The returned release removes the file only while it still
// names this process.
func acquirePIDLock(path string, log zerolog.Logger) (release func(), err error) {
	if raw, err := os.ReadFile(path); err == nil {
		pid, parseErr := strconv.Atoi(strings.TrimSpace(string(raw)))
		switch {
		case parseErr != nil:
			log.Warn().Str("pid_file", path).Msg("corrupt pid file, removing")
		case processAlive(pid):
			return nil, fmt.Errorf("another runner holds %s (pid %d)", path, pid)
		default:
			log.Info().Int("stale_pid", pid).Msg("removing stale pid file")
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale pid file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read pid file: %w", err)
	}

	own := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(own)), 0o644); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}

	return func() {
		raw, err := os.ReadFile(path)
		if err != nil {
			return
		}
		if pid, err := strconv.Atoi(strings.TrimSpace(string(raw))); err == nil && pid == own {
			os.Remove(path)
		}
	}, nil
}

// processAlive probes a pid with signal 0. EPERM means the process exists
// but belongs to someone else, which still counts as alive.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}
