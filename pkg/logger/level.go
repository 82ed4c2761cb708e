package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Level 日志级别，数值与 zapcore.Level 一致
type Level int8

const (
	DebugLevel  = Level(zapcore.DebugLevel)
	InfoLevel   = Level(zapcore.InfoLevel)
	WarnLevel   = Level(zapcore.WarnLevel)
	ErrorLevel  = Level(zapcore.ErrorLevel)
	DPanicLevel = Level(zapcore.DPanicLevel)
	PanicLevel  = Level(zapcore.PanicLevel)
	FatalLevel  = Level(zapcore.FatalLevel)
)

func (l Level) String() string {
	if l < DebugLevel || l > FatalLevel {
		return "unknown"
	}
	return l.toZapLevel().String()
}

func (l Level) toZapLevel() zapcore.Level { return zapcore.Level(l) }

func fromZapLevel(level zapcore.Level) Level { return Level(level) }

// ParseLevel 解析级别名称，大小写不敏感；空串视为 info，warning 视为 warn
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "":
		return InfoLevel, nil
	case "warning":
		return WarnLevel, nil
	}
	zl, err := zapcore.ParseLevel(name)
	if err != nil {
		return InfoLevel, fmt.Errorf("logger: unknown level %q", s)
	}
	return fromZapLevel(zl), nil
}

// MarshalText 输出级别名称
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText 从配置文本解析
func (l *Level) UnmarshalText(text []byte) error {
	lv, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = lv
	return nil
}
