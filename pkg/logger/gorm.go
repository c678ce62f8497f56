package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// SlowQueryThreshold 超过该耗时的语句按慢查询告警
const SlowQueryThreshold = 200 * time.Millisecond

var gormLevels = map[string]gormlogger.LogLevel{
	"silent": gormlogger.Silent,
	"error":  gormlogger.Error,
	"warn":   gormlogger.Warn,
	"info":   gormlogger.Info,
}

type requestIDKey struct{}

// WithRequestID 把请求 ID 放入上下文，SQL 日志会带上它
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom 取出上下文中的请求 ID
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// sqlLogger 把 gorm 的语句追踪写入全局 zap 日志，未识别的级别按 warn 处理
type sqlLogger struct {
	level gormlogger.LogLevel
	slow  time.Duration
}

// NewGormLogger 按配置级别创建 gorm 日志
func NewGormLogger(level string) gormlogger.Interface {
	lv, ok := gormLevels[strings.ToLower(level)]
	if !ok {
		lv = gormlogger.Warn
	}
	return &sqlLogger{level: lv, slow: SlowQueryThreshold}
}

func (l *sqlLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *sqlLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	l.emit(ctx, gormlogger.Info, fmt.Sprintf(msg, args...))
}

func (l *sqlLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	l.emit(ctx, gormlogger.Warn, fmt.Sprintf(msg, args...))
}

func (l *sqlLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	l.emit(ctx, gormlogger.Error, fmt.Sprintf(msg, args...))
}

// Trace 出错记 error，慢查询记 warn，其余语句只在 info 级别以 debug 输出。
// 记录不存在由仓储层转换为空结果，不计为错误。
func (l *sqlLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var (
		at  gormlogger.LogLevel
		msg string
	)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		at, msg = gormlogger.Error, "SQL执行失败"
	case l.slow > 0 && elapsed > l.slow:
		at, msg = gormlogger.Warn, "慢查询"
	default:
		at, msg = gormlogger.Info, "SQL"
	}
	if at > l.level {
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Duration("elapsed", elapsed),
		zap.String("source", utils.FileWithLineNum()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	switch at {
	case gormlogger.Error:
		fields = append(fields, zap.Error(err))
	case gormlogger.Warn:
		fields = append(fields, zap.Duration("threshold", l.slow))
	}
	l.emit(ctx, at, msg, fields...)
}

func (l *sqlLogger) emit(ctx context.Context, at gormlogger.LogLevel, msg string, fields ...zap.Field) {
	if at > l.level {
		return
	}
	if id := RequestIDFrom(ctx); id != "" {
		fields = append(fields, zap.String("requestId", id))
	}
	zl := Named("gorm")
	switch at {
	case gormlogger.Error:
		zl.Error(msg, fields...)
	case gormlogger.Warn:
		zl.Warn(msg, fields...)
	default:
		zl.Debug(msg, fields...)
	}
}
