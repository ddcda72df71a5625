package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginEvent(account string) *AuditEvent {
	return &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventTypeAuthLogin,
		Status:    EventStatusSuccess,
		AccountID: account,
		Provider:  "local",
	}
}

func TestFileLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audit")
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: dir})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, logger.Log(ctx, loginEvent("Local_a")))
	require.NoError(t, logger.Log(ctx, loginEvent("Local_b")))
	require.NoError(t, logger.Log(ctx, loginEvent("Local_c")))

	events, err := logger.ReadLogs(0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "Local_a", events[0].AccountID)
	assert.Equal(t, EventTypeAuthLogin, events[0].EventType)
	assert.Equal(t, "local", events[2].Provider)

	limited, err := logger.ReadLogs(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close(), "closing twice is fine")
	assert.Error(t, logger.Log(ctx, loginEvent("Local_d")))

	t.Run("reopen appends", func(t *testing.T) {
		reopened, err := NewFileLogger(FileLoggerConfig{BasePath: dir})
		require.NoError(t, err)
		defer reopened.Close()

		require.NoError(t, reopened.Log(ctx, loginEvent("Local_e")))
		events, err := reopened.ReadLogs(0)
		require.NoError(t, err)
		assert.Len(t, events, 4)
	})
}

func TestFileLogger_Rotation(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: dir, Rotate: true, MaxSize: 64, MaxFiles: 2})
	require.NoError(t, err)
	defer logger.Close()

	for i := 0; i < 6; i++ {
		require.NoError(t, logger.Log(context.Background(), loginEvent("Local_rotating")))
	}

	rotated, err := filepath.Glob(filepath.Join(dir, "audit-*.log"))
	require.NoError(t, err)
	assert.NotEmpty(t, rotated)
	assert.LessOrEqual(t, len(rotated), 2)

	info, err := os.Stat(filepath.Join(dir, currentFileName))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestNewFileLogger_BadPath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	_, err := NewFileLogger(FileLoggerConfig{BasePath: filepath.Join(file, "audit")})
	assert.Error(t, err)
}
