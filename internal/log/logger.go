package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init 初始化全局日志：dev 环境用彩色控制台输出，其他环境输出 JSON。
// LOG_LEVEL 可覆盖默认级别（dev 为 debug，其他为 info）。
func Init(env string) {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if env == "dev" {
		level = zerolog.DebugLevel
	}
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}

	var logger zerolog.Logger
	if env == "dev" {
		cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		logger = zerolog.New(cw)
	} else {
		logger = zerolog.New(os.Stdout)
	}
	log.Logger = logger.Level(level).With().Timestamp().Str("service", "chat-app-api").Logger()
}
