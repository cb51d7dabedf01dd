// Package log 提供基于 zerolog 的日志工具，支持 stdout/stderr 和文件输出（lumberjack 轮转）.
package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yeisme/sourcelens/pkg/configs"
)

var (
	logger   zerolog.Logger
	initOnce sync.Once
)

// Init 初始化全局 logger.
func Init() {
	initOnce.Do(initLogger)
}

func initLogger() {
	cfg := configs.GetConfig()

	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil || cfg.Log.Level == "" {
		lvl = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(lvl)

	ctx := zerolog.New(io.MultiWriter(writers(cfg.Log)...)).With()
	if cfg.Server.Debug {
		ctx = ctx.Caller().Stack()

		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger = ctx.Timestamp().Str("service", configs.AppName).Logger()
	log.Logger = logger

	if err != nil && cfg.Log.Level != "" {
		logger.Warn().Str("level", cfg.Log.Level).Msg("invalid log level, using info")
	}

	// 热重载只调整级别，输出目标需要重启生效
	configs.OnReload(func(next configs.AppConfig) {
		if l, err := zerolog.ParseLevel(strings.ToLower(next.Log.Level)); err == nil && next.Log.Level != "" {
			zerolog.SetGlobalLevel(l)
			logger.Info().Str("level", l.String()).Msg("log level reloaded")
		}
	})
}

// writers 按配置组装输出：标准输出/错误（console 或 json）加可选的轮转文件.
func writers(cfg configs.LogConfig) []io.Writer {
	var out io.Writer = os.Stderr
	if cfg.Output == "stdout" {
		out = os.Stdout
	}

	if cfg.Format != "json" {
		out = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = out
			w.TimeFormat = time.DateTime
		})
	}

	ws := []io.Writer{out}

	if cfg.EnableFile {
		// 文件始终写 JSON
		ws = append(ws, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}

	return ws
}

// Logger 返回全局 logger.
func Logger() *zerolog.Logger {
	initOnce.Do(initLogger)

	return &logger
}

// Component 返回带 component 字段的子 logger.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// GinWriter 接管 gin 的调试输出，每行一条事件，带 source=gin.
type GinWriter struct {
	logger zerolog.Logger
	level  zerolog.Level
}

// NewGinWriter 用作 gin.DefaultWriter 与 gin.DefaultErrorWriter.
func NewGinWriter(logger *zerolog.Logger, level zerolog.Level) *GinWriter {
	return &GinWriter{logger: logger.With().Str("source", "gin").Logger(), level: level}
}

func (w *GinWriter) Write(p []byte) (int, error) {
	for line := range strings.Lines(string(p)) {
		line = strings.TrimPrefix(strings.TrimSpace(line), "[GIN-debug] ")
		if line == "" {
			continue
		}

		w.logger.WithLevel(w.level).Msg(line)
	}

	return len(p), nil
}
