package app

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/tokmz/marquee/pkg/logger"
)

// Watch 订阅配置源：日志级别即时生效，其余变更提示重启
func (a *App) Watch(src *Source) error {
	src.OnReload(func(next *Config) { a.Reload(next) })
	src.OnError(func(err error) {
		a.log.Error("config reload rejected", zap.Error(err))
	})
	return src.Watch()
}

// Reload 应用新配置中可热更新的部分，返回需要重启才能生效的配置段
func (a *App) Reload(next *Config) []string {
	if level, err := logger.ParseLevel(next.Log.Level); err == nil {
		if prev := a.log.Level(); prev != level {
			a.log.SetLevel(level)
			a.log.Warn("log level changed", zap.String("from", prev.String()), zap.String("to", level.String()))
		}
	}

	sections := map[string][2]any{
		"server":     {a.cfg.Server, next.Server},
		"socket":     {a.cfg.Socket, next.Socket},
		"database":   {a.cfg.Database, next.Database},
		"cache":      {a.cfg.Cache, next.Cache},
		"broker":     {a.cfg.Broker, next.Broker},
		"tracing":    {a.cfg.Tracing, next.Tracing},
		"auth":       {a.cfg.Auth, next.Auth},
		"jobs":       {a.cfg.Jobs, next.Jobs},
		"watchparty": {a.cfg.WatchParty, next.WatchParty},
	}
	var stale []string
	for _, name := range []string{"server", "socket", "database", "cache", "broker", "tracing", "auth", "jobs", "watchparty"} {
		pair := sections[name]
		if !reflect.DeepEqual(pair[0], pair[1]) {
			stale = append(stale, name)
		}
	}
	if len(stale) > 0 {
		a.log.Warn("config changed, restart required", zap.Strings("sections", stale))
	}
	return stale
}
