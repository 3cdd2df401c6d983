// Command traceserve runs the worker-pool document server against a batch
// of Windows ETL or Linux perf.data traces concurrently, printing a summary
// (and, if -pid is given, a stacks analysis) for each as it finishes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gopherprof/tracecore/internal/logging"
	"github.com/gopherprof/tracecore/internal/progress"
	"github.com/gopherprof/tracecore/server"
	"github.com/gopherprof/tracecore/stacksanalysis"
	"github.com/gopherprof/tracecore/symbolresolve"
)

type opts struct {
	workers  int
	logLevel string
	pid      int
	top      int
}

func main() {
	var o opts

	root := &cobra.Command{
		Use:   "traceserve TRACE...",
		Short: "Process a batch of traces through a bounded worker pool",
		Long: `traceserve opens every trace file given on the command line, runs each
through the same process/analyze pipeline as tracedump, but does so
concurrently across a bounded pool of workers instead of one at a time.

Each document is opened, processed, and (if -pid is nonzero) analyzed
independently; a slow or malformed trace never blocks the others.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o, args)
		},
	}

	root.Flags().IntVarP(&o.workers, "workers", "w", 4, "maximum number of traces processed concurrently")
	root.Flags().StringVar(&o.logLevel, "log", "info", "log level: debug, info, warn, error")
	root.Flags().IntVar(&o.pid, "pid", 0, "if nonzero, analyze this OS process id's samples in every trace that has it")
	root.Flags().IntVar(&o.top, "top", 20, "number of functions to list when -pid is given")

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, o opts, paths []string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.New(o.logLevel)
	defer logger.Sync()

	srv := server.New(
		server.WithLogger(logger),
		server.WithWorkers(o.workers),
		server.WithResolver(symbolresolve.NewDWARFResolver()),
	)

	token := progress.NewToken()
	go func() {
		<-ctx.Done()
		token.Cancel()
	}()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, path := range paths {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			if err := processOne(srv, o, token, path); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			}
		}(path)
	}
	wg.Wait()

	if failed > 0 {
		return fmt.Errorf("%d of %d trace(s) failed", failed, len(paths))
	}
	return nil
}

func processOne(srv *server.Server, o opts, token *progress.Token, path string) error {
	id, err := srv.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer srv.Close(id)

	if err := srv.Process(id, progress.NopListener{}, token); err != nil {
		return fmt.Errorf("process: %w", err)
	}

	trace, err := srv.Context(id)
	if err != nil {
		return fmt.Errorf("context: %w", err)
	}

	info := trace.SystemInfo()
	procs := trace.ProcessesWithSamples()
	fmt.Printf("%s: %s %s, %d process(es) with samples\n", path, info.OSName, info.OSVersion, len(procs))

	if o.pid == 0 {
		return nil
	}

	for _, p := range procs {
		if p.OSPID != o.pid {
			continue
		}
		analysis, err := srv.Analyze(id, p.Key, stacksanalysis.Filter{}, progress.NopListener{}, token)
		if err != nil {
			return fmt.Errorf("analyze pid %d: %w", o.pid, err)
		}
		for _, source := range analysis.Sources {
			fmt.Printf("%s: top %d functions by total, source %d:\n", path, o.top, source)
			for _, fn := range analysis.ListFunctions(source, stacksanalysis.SortByTotal, 0, o.top) {
				mod := analysis.Module(fn.Module)
				total := 0
				if c, ok := fn.Hits[source]; ok {
					total = c.Total
				}
				fmt.Printf("%s:   %8d  %s!%s\n", path, total, mod.Name, fn.Name)
			}
		}
		return nil
	}
	return fmt.Errorf("no process with pid %d has samples", o.pid)
}
