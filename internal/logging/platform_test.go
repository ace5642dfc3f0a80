package logging

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingSink) Log(level string, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, level+" "+line)
}

func TestEnablePlatformLogging_ForwardsLines(t *testing.T) {
	sink := &recordingSink{}
	EnablePlatformLogging(sink, false)

	log := Default()
	log.Info(context.Background(), "database opened", "db_key", "file:///a.kdbx")
	log.Error(context.Background(), "save failed", "reason", "checksum")

	require.Len(t, sink.lines, 2)
	assert.Contains(t, sink.lines[0], "INFO database opened")
	assert.Contains(t, sink.lines[0], "db_key=file:///a.kdbx")
	assert.Contains(t, sink.lines[1], "ERROR save failed")
}

func TestEnablePlatformLogging_DebugSuppressedByDefault(t *testing.T) {
	sink := &recordingSink{}
	EnablePlatformLogging(sink, false)

	Default().Debug(context.Background(), "noise")
	assert.Empty(t, sink.lines)

	EnablePlatformLogging(sink, true)
	Default().Debug(context.Background(), "wanted")
	require.Len(t, sink.lines, 1)
	assert.True(t, strings.HasPrefix(sink.lines[0], "DEBUG"))
}

func TestWith_AddsPersistentAttributes(t *testing.T) {
	sink := &recordingSink{}
	EnablePlatformLogging(sink, false)

	child := Default().With("component", "remote")
	child.Warn(context.Background(), "reconnecting", "attempt", 2)

	require.Len(t, sink.lines, 1)
	assert.Contains(t, sink.lines[0], "component=remote")
	assert.Contains(t, sink.lines[0], "attempt=2")
}
