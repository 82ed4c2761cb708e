// Command marquee 实时聊天与同步观影服务
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/tokmz/marquee/internal/app"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "marquee:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		path        = flag.String("config", "", "配置文件路径，为空时查找 ./config.* 与 ./configs/config.*")
		printConfig = flag.Bool("print-config", false, "打印合并后的生效配置并退出")
	)
	flag.Parse()

	cfg, src, err := app.Load(*path)
	if err != nil {
		return err
	}
	defer src.Close()

	if *printConfig {
		out, err := yaml.Marshal(src.Settings())
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	if err := a.Watch(src); err != nil {
		a.Logger().Warn("config watch disabled", zap.Error(err))
	}
	return a.Run(ctx)
}
