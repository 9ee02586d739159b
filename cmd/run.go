package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pyhu26/post-woman/internal/engine"
	"github.com/pyhu26/post-woman/internal/format"
)

// executeRun drives one orchestrator run with live progress. The first
// interrupt stops the run once the in-flight request finishes; a second
// one exits immediately.
func executeRun(cmd *cobra.Command, run func(context.Context, *engine.Orchestrator) (engine.Snapshot, error)) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	noHist, _ := cmd.Flags().GetBool("no-history")
	log := appLogger()

	o := newOrchestrator(!noHist)
	unsubscribe := o.Subscribe(format.PrintProgress)
	defer unsubscribe()

	interrupts := make(chan os.Signal, 2)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-interrupts:
			format.PrintError("Interrupted, stopping after the current request (Ctrl+C again to quit)")
			o.Stop()
		case <-done:
			return
		}
		select {
		case <-interrupts:
			closeApp()
			os.Exit(130)
		case <-done:
		}
	}()

	snap, err := run(cmd.Context(), o)
	if err != nil {
		var cycle *engine.CycleError
		if errors.As(err, &cycle) {
			log.Debug("Workflow rejected", zap.Strings("cycle", cycle.NodeIDs))
		}
		fatal("Run failed", err)
	}

	format.PrintRunResults(snap, verbose)

	if snap.State == engine.StateStopped && snap.Failed() {
		closeApp()
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-history", false, "Don't save the run's requests to history")
}
