package pidlock

import (
	"fmt"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"
	"hash/crc32"
	"os"
	"path"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// pidPath derives the lock file's path from the dump's output location
// rather than a job name, so two concurrent dumps to the same
// destination collide and everything else doesn't.
func pidPath(outputLocation string) string {
	sum := crc32.ChecksumIEEE([]byte(outputLocation))
	return path.Join(os.TempDir(), fmt.Sprintf("dbdump.%08x.pid", sum))
}

// CheckAndCreatePidFile refuses to proceed if another dbdump process already
// holds the lock for this outputLocation, and otherwise claims it.
func CheckAndCreatePidFile(outputLocation string, command string) error {
	if outputLocation == "" {
		return fmt.Errorf("outputLocation is required")
	}
	lockPath := pidPath(outputLocation)
	existingPidData, err := os.ReadFile(lockPath)
	if err == nil {
		parts := strings.SplitN(strings.TrimSpace(string(existingPidData)), "|", 3)
		if len(parts) < 3 {
			log.Warn().Msgf("invalid pid file format in %s - will be overwritten", lockPath)
		} else if pid, err := strconv.Atoi(parts[0]); err == nil {
			if proc, err := os.FindProcess(pid); err == nil {
				if err := proc.Signal(syscall.Signal(0)); err == nil {
					if procInfo, infoErr := process.NewProcess(int32(pid)); infoErr == nil {
						if cmdLine, cmdLineErr := procInfo.Cmdline(); cmdLineErr == nil {
							return fmt.Errorf(
								"another dbdump `%s` command is already running against %s (pid=%d, lockPath=%s, cmdLine=%s)",
								parts[1], outputLocation, pid, lockPath, cmdLine,
							)
						} else {
							log.Warn().Err(cmdLineErr).Str("lockPath", lockPath).Int("pid", pid).Msg("can't get cmdLine")
						}
					} else {
						log.Warn().Err(infoErr).Str("lockPath", lockPath).Int("pid", pid).Msg("can't get process info")
					}
				}
			}
		}
	}

	pid := fmt.Sprintf("%d|%s|%s", os.Getpid(), command, time.Now().Format(time.RFC3339))
	return os.WriteFile(lockPath, []byte(pid), 0644)
}

func RemovePidFile(outputLocation string) {
	_ = os.Remove(pidPath(outputLocation))
}
