package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
server:
  addr: ":8080"
  shutdown_timeout: 5s
socket:
  path: /socket
  max_connections: 1000
  origins:
    - http://localhost:3000
    - https://marquee.example
chat:
  max_message_length: 2000
  history_size: 50
`

func writeTestConfig(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func loadTest(t *testing.T, opts ...Option) *Config {
	t.Helper()
	path := writeTestConfig(t, t.TempDir(), "marquee.yaml", testYAML)
	c := New(append([]Option{WithConfigFile(path)}, opts...)...)
	require.NoError(t, c.Load())
	t.Cleanup(c.Close)
	return c
}

func TestNewWithOptions(t *testing.T) {
	c := New(
		WithAutoWatch(true),
		WithEnvPrefix("MARQUEE"),
		WithDebounce(time.Second),
	)
	assert.True(t, c.opts.autoWatch)
	assert.Equal(t, "MARQUEE", c.opts.envPrefix)
	assert.Equal(t, time.Second, c.opts.debounce)
	assert.Equal(t, 100*time.Millisecond, New().opts.debounce)
}

func TestLoadByNameAndPaths(t *testing.T) {
	dir := t.TempDir()
	writeTestConfig(t, dir, "marquee.yaml", testYAML)

	c := New(
		WithConfigName("marquee"),
		WithConfigType("yaml"),
		WithConfigPaths(dir),
	)
	require.NoError(t, c.Load())
	assert.Equal(t, "/socket", c.GetString("socket.path"))
}

func TestGetters(t *testing.T) {
	c := loadTest(t)

	assert.Equal(t, ":8080", c.GetString("server.addr"))
	assert.Equal(t, 1000, c.GetInt("socket.max_connections"))
	assert.False(t, c.GetBool("socket.compression"))
	assert.Equal(t, 5*time.Second, c.GetDuration("server.shutdown_timeout"))
	assert.Equal(t, []string{"http://localhost:3000", "https://marquee.example"}, c.GetStringSlice("socket.origins"))
	assert.Equal(t, 2000, Get[int](c, "chat.max_message_length"))
	assert.Equal(t, "", Get[string](c, "missing.key"))

	assert.True(t, c.IsSet("chat.history_size"))
	assert.False(t, c.IsSet("chat.nope"))

	c.Set("chat.history_size", 10)
	assert.Equal(t, 10, c.GetInt("chat.history_size"))

	assert.NotNil(t, c.Viper())
	assert.NotEmpty(t, c.File())
}

type socketSection struct {
	Path           string   `mapstructure:"path" validate:"required,startswith=/"`
	MaxConnections int      `mapstructure:"max_connections" validate:"gte=0"`
	Origins        []string `mapstructure:"origins" validate:"dive,url"`
}

type chatSection struct {
	MaxMessageLength int `mapstructure:"max_message_length" validate:"gt=0"`
	HistorySize      int `mapstructure:"history_size" validate:"gte=0"`
}

type testSettings struct {
	Socket socketSection `mapstructure:"socket"`
	Chat   chatSection   `mapstructure:"chat"`
}

func TestBind(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid file", mutate: func(*Config) {}},
		{name: "path without slash", mutate: func(c *Config) { c.Set("socket.path", "socket") }, wantErr: true},
		{name: "zero message length", mutate: func(c *Config) { c.Set("chat.max_message_length", 0) }, wantErr: true},
		{name: "bad origin", mutate: func(c *Config) { c.Set("socket.origins", []string{"not a url"}) }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := loadTest(t)
			tt.mutate(c)

			var s testSettings
			err := c.Bind(&s)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrConfigInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "/socket", s.Socket.Path)
			assert.Equal(t, 2000, s.Chat.MaxMessageLength)
		})
	}
}

func TestUnmarshalKey(t *testing.T) {
	c := loadTest(t)
	var chat chatSection
	require.NoError(t, c.UnmarshalKey("chat", &chat))
	assert.Equal(t, chatSection{MaxMessageLength: 2000, HistorySize: 50}, chat)
}

func TestWithDefaults(t *testing.T) {
	c := loadTest(t, WithDefaults(map[string]any{
		"chat.history_size":    100,
		"watchparty.party_ttl": "24h",
	}))

	assert.Equal(t, 50, c.GetInt("chat.history_size"), "file value wins over default")
	assert.Equal(t, 24*time.Hour, c.GetDuration("watchparty.party_ttl"))
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("MARQUEE_SOCKET_PATH", "/ws")
	t.Setenv("MARQUEE_CHAT_HISTORY_SIZE", "7")

	c := loadTest(t, WithEnvPrefix("MARQUEE"))
	assert.Equal(t, "/ws", c.GetString("socket.path"))
	assert.Equal(t, 7, c.GetInt("chat.history_size"))
}

func TestConfigFileNotFound(t *testing.T) {
	t.Run("explicit file", func(t *testing.T) {
		err := New(WithConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))).Load()
		assert.Error(t, err)
	})

	t.Run("by name", func(t *testing.T) {
		err := New(
			WithConfigName("nonexistent"),
			WithConfigType("yaml"),
			WithConfigPaths(t.TempDir()),
		).Load()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConfigNotFound))
	})
}

func TestLoadWithoutSource(t *testing.T) {
	c := New(WithDefaults(map[string]any{"socket": map[string]any{"path": "/socket"}}))
	err := c.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigNotFound))
	assert.Equal(t, "/socket", c.GetString("socket.path"), "defaults still apply")
	assert.Empty(t, c.File())
	assert.True(t, errors.Is(c.StartWatch(), ErrNoConfigFile))
}

func TestOnChangeReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "marquee.yaml", testYAML)

	got := make(chan int, 4)
	c := New(
		WithConfigFile(path),
		WithAutoWatch(true),
		WithOnChange(func(c *Config) {
			select {
			case got <- c.GetInt("chat.history_size"):
			default:
			}
		}),
	)
	require.NoError(t, c.Load())
	t.Cleanup(c.Close)
	assert.True(t, c.Watching())

	require.NoError(t, os.WriteFile(path, []byte("chat:\n  history_size: 5\n"), 0o644))

	deadline := time.After(3 * time.Second)
	for {
		select {
		case n := <-got:
			if n == 5 {
				return
			}
		case <-deadline:
			t.Fatal("onChange callback did not observe the new value")
		}
	}
}

func TestOnChangeDebounced(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "marquee.yaml", testYAML)

	var mu sync.Mutex
	var seen []int
	c := New(
		WithConfigFile(path),
		WithDebounce(300*time.Millisecond),
		WithOnChange(func(c *Config) {
			mu.Lock()
			seen = append(seen, c.GetInt("chat.history_size"))
			mu.Unlock()
		}),
	)
	require.NoError(t, c.Load())
	require.NoError(t, c.StartWatch())
	require.NoError(t, c.StartWatch(), "second start is a no-op")
	t.Cleanup(c.Close)

	for _, n := range []int{1, 2, 3} {
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("chat:\n  history_size: %d\n", n)), 0o644))
		time.Sleep(20 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, 3*time.Second, 50*time.Millisecond)
	time.Sleep(500 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 1, "burst of writes collapses into one callback")
	assert.Equal(t, 3, seen[0])
}

func TestOnChangePanicReported(t *testing.T) {
	path := writeTestConfig(t, t.TempDir(), "marquee.yaml", testYAML)
	errs := make(chan error, 1)
	c := New(
		WithConfigFile(path),
		WithAutoWatch(true),
		WithDebounce(10*time.Millisecond),
		WithOnChange(func(*Config) { panic("bad reload") }),
		WithOnError(func(err error) {
			select {
			case errs <- err:
			default:
			}
		}),
	)
	require.NoError(t, c.Load())
	t.Cleanup(c.Close)

	require.NoError(t, os.WriteFile(path, []byte("chat:\n  history_size: 9\n"), 0o644))
	select {
	case err := <-errs:
		assert.ErrorContains(t, err, "bad reload")
	case <-time.After(3 * time.Second):
		t.Fatal("panic in onChange was not reported")
	}
}

func TestStopWatchSilencesCallbacks(t *testing.T) {
	path := writeTestConfig(t, t.TempDir(), "marquee.yaml", testYAML)
	called := make(chan struct{}, 1)
	c := New(WithConfigFile(path), WithAutoWatch(true), WithDebounce(10*time.Millisecond),
		WithOnChange(func(*Config) { called <- struct{}{} }))
	require.NoError(t, c.Load())

	c.StopWatch()
	assert.False(t, c.Watching())
	require.NoError(t, os.WriteFile(path, []byte("chat:\n  history_size: 1\n"), 0o644))

	select {
	case <-called:
		t.Fatal("callback after StopWatch")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := loadTest(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = c.GetString("socket.path")
			_ = c.AllSettings()
		}()
		go func(n int) {
			defer wg.Done()
			c.Set("chat.history_size", n)
		}(i)
	}
	wg.Wait()
}
