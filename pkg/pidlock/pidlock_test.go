package pidlock

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckAndCreatePidFile(t *testing.T) {
	t.Run("CreatesValidPidFile", func(t *testing.T) {
		output := "s3://bucket/dump-1"
		command := "dump"

		err := CheckAndCreatePidFile(output, command)
		require.NoError(t, err)

		data, err := os.ReadFile(pidPath(output))
		require.NoError(t, err)

		parts := strings.Split(string(data), "|")
		require.Len(t, parts, 3)
		pid, err := strconv.Atoi(parts[0])
		require.NoError(t, err)
		require.Equal(t, os.Getpid(), pid)
		require.Equal(t, command, parts[1])
		_, err = time.Parse(time.RFC3339, parts[2])
		require.NoError(t, err)

		RemovePidFile(output)
	})

	t.Run("DetectsRunningProcess", func(t *testing.T) {
		output := "file:///tmp/running-dump"
		command := "dump"

		err := CheckAndCreatePidFile(output, command)
		require.NoError(t, err)

		err = CheckAndCreatePidFile(output, command)
		require.Error(t, err)
		require.Contains(t, err.Error(), "already running")

		RemovePidFile(output)
	})

	t.Run("OverwritesInvalidPidFile", func(t *testing.T) {
		output := "file:///tmp/invalid-dump"

		err := os.WriteFile(pidPath(output), []byte("invalid-content"), 0644)
		require.NoError(t, err)

		err = CheckAndCreatePidFile(output, "dump")
		require.NoError(t, err)

		data, err := os.ReadFile(pidPath(output))
		require.NoError(t, err)
		parts := strings.Split(string(data), "|")
		require.Len(t, parts, 3)

		RemovePidFile(output)
	})

	t.Run("HandlesNonExistentProcess", func(t *testing.T) {
		output := "file:///tmp/stale-dump"

		nonExistentPid := 999999
		pidContent := fmt.Sprintf("%d|dump|%s", nonExistentPid, time.Now().Format(time.RFC3339))
		err := os.WriteFile(pidPath(output), []byte(pidContent), 0644)
		require.NoError(t, err)

		err = CheckAndCreatePidFile(output, "dump")
		require.NoError(t, err)

		RemovePidFile(output)
	})

	t.Run("FailsOnEmptyOutputLocation", func(t *testing.T) {
		err := CheckAndCreatePidFile("", "dump")
		require.Error(t, err)
		require.Contains(t, err.Error(), "outputLocation is required")
	})
}

func TestRemovePidFile(t *testing.T) {
	t.Run("RemovesExistingPidFile", func(t *testing.T) {
		output := "file:///tmp/remove-dump"

		err := CheckAndCreatePidFile(output, "dump")
		require.NoError(t, err)

		_, err = os.Stat(pidPath(output))
		require.NoError(t, err)

		RemovePidFile(output)

		_, err = os.Stat(pidPath(output))
		require.True(t, os.IsNotExist(err))
	})

	t.Run("SilentlyHandlesMissingPidFile", func(t *testing.T) {
		output := "file:///tmp/never-existed-dump"

		_, err := os.Stat(pidPath(output))
		require.True(t, os.IsNotExist(err))

		RemovePidFile(output)
	})
}

func TestSignalHandling(t *testing.T) {
	t.Run("DetectsRunningProcessViaSignal", func(t *testing.T) {
		output := "file:///tmp/signal-dump"

		pidContent := fmt.Sprintf("%d|dump|%s", os.Getpid(), time.Now().Format(time.RFC3339))
		err := os.WriteFile(pidPath(output), []byte(pidContent), 0644)
		require.NoError(t, err)

		err = CheckAndCreatePidFile(output, "dump")
		require.Error(t, err)
		require.Contains(t, err.Error(), "already running")

		RemovePidFile(output)
	})
}
