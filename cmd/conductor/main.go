package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "conductor",
		Short:         "Workflow orchestration and alerting engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var client clientOptions
	client.bind(root)

	root.AddCommand(newServeCommand())
	root.AddCommand(newWorkflowCommand(&client))
	root.AddCommand(newAgentCommand(&client))
	root.AddCommand(newAlertCommand(&client))
	root.AddCommand(newHashKeyCommand())
	return root
}
