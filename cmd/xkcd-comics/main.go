package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/LuSP19/xkcd-comics/internal/ui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := ui.NewCLI().Execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
