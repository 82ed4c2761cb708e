package config

import "github.com/tokmz/marquee/pkg/errors"

var (
	// ErrConfigNotFound 未找到配置文件
	ErrConfigNotFound = errors.New(3001, 500, "配置文件未找到", nil)
	// ErrConfigInvalid 解码或校验失败
	ErrConfigInvalid = errors.New(3002, 500, "配置内容不合法", nil)
	// ErrConfigReadFailed 文件存在但无法读取或解析
	ErrConfigReadFailed = errors.New(3003, 500, "配置读取失败", nil)
	// ErrNoConfigFile 未使用配置文件，无法监听
	ErrNoConfigFile = errors.New(3004, 500, "未使用配置文件", nil)
)
