package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/component-base/cli"

	"github.com/codemetrics/codegraph/pkg/cmd/codegraph"
)

func main() {
	profiler := codegraph.Profile(os.Getenv("CODEGRAPH_PROFILE"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	command := codegraph.NewCodegraphCommand()
	command.SetContext(ctx)
	code := cli.Run(command)
	cancel()
	profiler.Stop()
	os.Exit(code)
}
