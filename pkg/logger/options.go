package logger

// Option 构造选项
type Option func(*Config)

// WithLevel 日志级别
func WithLevel(level Level) Option {
	return func(c *Config) { c.Level = level }
}

// WithFormat 编码格式
func WithFormat(format Format) Option {
	return func(c *Config) { c.Format = format }
}

// WithConsoleOutput 输出到 stdout
func WithConsoleOutput() Option {
	return func(c *Config) { c.Console = true }
}

// WithFileOutput 只写文件，不再输出到 stdout
func WithFileOutput(filename string) Option {
	return func(c *Config) {
		c.File = filename
		c.Console = false
	}
}

// WithRotateOutput 轮转文件输出
func WithRotateOutput(rc *RotateConfig) Option {
	return func(c *Config) { c.Rotate = rc }
}

// WithSampling 高频日志采样
func WithSampling(sc *SamplingConfig) Option {
	return func(c *Config) { c.Sampling = sc }
}

// WithCaller 记录调用位置
func WithCaller(enable bool) Option {
	return func(c *Config) { c.EnableCaller = enable }
}

// WithStacktrace Error 及以上附带堆栈
func WithStacktrace(enable bool) Option {
	return func(c *Config) { c.EnableStacktrace = enable }
}

// WithHook 追加 Hook
func WithHook(h Hook) Option {
	return func(c *Config) { c.Hooks = append(c.Hooks, h) }
}
