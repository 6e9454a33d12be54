package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"goalbreaker/internal/cmd"
)

func main() {
	_ = godotenv.Load()

	// Ctrl-C stops the running streams; the conversation is still saved
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cmd.MainContext(ctx)
	stop()
	os.Exit(code)
}
