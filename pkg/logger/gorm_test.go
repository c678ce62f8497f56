package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(Replace(zap.New(core)))
	return logs
}

func stmt(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLoggerTrace(t *testing.T) {
	logs := observe(t)
	l := NewGormLogger("warn")
	ctx := WithRequestID(context.Background(), "req-1")

	l.Trace(ctx, time.Now(), stmt("SELECT 1", 1), nil)
	assert.Zero(t, logs.Len(), "plain statements are below warn")

	l.Trace(ctx, time.Now(), stmt("SELECT * FROM sys_user", 0), gorm.ErrRecordNotFound)
	assert.Zero(t, logs.Len(), "record not found is not an error")

	l.Trace(ctx, time.Now(), stmt("INSERT INTO sys_casbin_rule", -1), errors.New("disk full"))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "gorm", entry.LoggerName)
	fields := entry.ContextMap()
	assert.Equal(t, "req-1", fields["requestId"])
	assert.Equal(t, "INSERT INTO sys_casbin_rule", fields["sql"])
	assert.NotContains(t, fields, "rows", "unknown row count is omitted")

	l.Trace(context.Background(), time.Now().Add(-time.Second), stmt("SELECT * FROM sys_dept", 3), nil)
	slow := logs.FilterMessage("慢查询").All()
	require.Len(t, slow, 1)
	assert.Equal(t, zapcore.WarnLevel, slow[0].Level)
	assert.Equal(t, int64(3), slow[0].ContextMap()["rows"])
	assert.NotContains(t, slow[0].ContextMap(), "requestId")
}

func TestGormLoggerLevels(t *testing.T) {
	logs := observe(t)

	NewGormLogger("silent").Trace(context.Background(), time.Now(), stmt("SELECT 1", 1), errors.New("boom"))
	assert.Zero(t, logs.Len())

	verbose := NewGormLogger("INFO")
	verbose.Trace(context.Background(), time.Now(), stmt("SELECT 1", 1), nil)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)

	quiet := verbose.LogMode(gormlogger.Error)
	quiet.Warn(context.Background(), "slow %s", "x")
	quiet.Error(context.Background(), "broken %d", 1)
	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, 1, logs.FilterMessage("broken 1").Len())

	unknown := NewGormLogger("verbose")
	unknown.Info(context.Background(), "hidden")
	unknown.Warn(context.Background(), "shown")
	assert.Equal(t, 0, logs.FilterMessage("hidden").Len())
	assert.Equal(t, 1, logs.FilterMessage("shown").Len())
}

func TestRequestIDFrom(t *testing.T) {
	assert.Empty(t, RequestIDFrom(context.Background()))
	assert.Equal(t, "abc", RequestIDFrom(WithRequestID(context.Background(), "abc")))
}
