package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dtmfin"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := rootCommand(newApp())
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode 分类错误使用 dtmfin.ErrorCode，其它错误统一为 1
func exitCode(err error) int {
	if code := dtmfin.ErrorCode(err); code > 0 {
		return code
	}
	return 1
}
