package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StartWatch 监听配置文件，重复调用无副作用
// 编辑器保存时往往产生多个事件，debounce 窗口内只回调一次
func (c *Config) StartWatch() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.v.ConfigFileUsed() == "" {
		return ErrNoConfigFile
	}
	if c.watching {
		return nil
	}
	c.watching = true
	c.v.OnConfigChange(c.onEvent)
	c.v.WatchConfig()
	return nil
}

// StopWatch 停止回调
// viper 不提供关闭底层 fsnotify watcher 的方法，停止后事件被忽略
func (c *Config) StopWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watching = false
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

// Watching 是否正在监听
func (c *Config) Watching() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watching
}

// Close 停止监听
func (c *Config) Close() {
	c.StopWatch()
}

func (c *Config) onEvent(fsnotify.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.watching || c.opts.onChange == nil {
		return
	}
	if c.pending != nil {
		c.pending.Stop()
	}
	c.pending = time.AfterFunc(c.opts.debounce, c.fire)
}

func (c *Config) fire() {
	c.mu.Lock()
	active := c.watching
	c.pending = nil
	c.mu.Unlock()
	if !active {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.reportError(fmt.Errorf("config: onChange panic: %v", r))
		}
	}()
	c.opts.onChange(c)
}

func (c *Config) reportError(err error) {
	if c.opts.onError != nil {
		c.opts.onError(err)
	}
}
