// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger 是全局日志实例，Init 之后所有包都通过它输出结构化日志。
var Logger zerolog.Logger

// Init 初始化全局 zerolog 实例。
// 本地开发时设置 LOG_PRETTY=true 可以输出人类可读的彩色日志，
// 生产环境保持默认的 JSON 输出，便于采集。
func Init(serviceName string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out = zerolog.New(os.Stdout)
	if os.Getenv("LOG_PRETTY") == "true" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly})
	}

	Logger = out.With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	// 同时替换 zerolog 的全局 logger 和上下文默认 logger，
	// 这样 logger.Ctx(ctx) 在没有显式注入时也能拿到可用实例。
	log.Logger = Logger
	zerolog.DefaultContextLogger = &Logger
}

// Ctx 从上下文中取出 logger，没有注入时返回全局默认实例。
func Ctx(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// WithContext 将带有附加字段的 logger 注入上下文，供下游调用链使用。
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}
