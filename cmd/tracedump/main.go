// Command tracedump opens a Windows ETL or Linux perf.data trace,
// builds its process/thread/module context, and prints a summary —
// optionally folding one process's samples into a stacks analysis and
// listing its hottest functions.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gopherprof/tracecore/internal/logging"
	"github.com/gopherprof/tracecore/server"
	"github.com/gopherprof/tracecore/stacksanalysis"
	"github.com/gopherprof/tracecore/symbolresolve"
	"github.com/gopherprof/tracecore/tracemodel"
)

func main() {
	var (
		flagInput = flag.String("i", "", "input trace `file` (.etl or perf.data)")
		flagPID   = flag.Int("pid", 0, "if nonzero, analyze this OS process id's samples")
		flagTop   = flag.Int("top", 20, "number of functions to list when -pid is given")
		flagLevel = flag.String("log", "info", "log `level`: debug, info, warn, error")
	)
	flag.Parse()
	if *flagInput == "" || flag.NArg() > 0 {
		flag.Usage()
		os.Exit(1)
	}

	logger := logging.New(*flagLevel)
	defer logger.Sync()

	srv := server.New(
		server.WithLogger(logger),
		server.WithResolver(symbolresolve.NewDWARFResolver()),
	)

	id, err := srv.Open(*flagInput)
	if err != nil {
		log.Fatal(err)
	}
	defer srv.Close(id)

	if err := srv.Process(id, nil, nil); err != nil {
		log.Fatal(err)
	}

	ctx, err := srv.Context(id)
	if err != nil {
		log.Fatal(err)
	}

	info := ctx.SystemInfo()
	fmt.Printf("system: %s %s %s (%d CPUs)\n", info.OSName, info.OSVersion, info.Hostname, info.NumberOfProcessors)

	procs := ctx.ProcessesWithSamples()
	fmt.Printf("%d process(es) with samples:\n", len(procs))
	for _, p := range procs {
		fmt.Printf("  pid=%-8d image=%-24s threads=%d\n", p.OSPID, p.ImageName, len(ctx.ThreadsOf(p.Key)))
	}

	fmt.Printf("sample sources:\n")
	for _, src := range ctx.Sources() {
		fmt.Printf("  %-12s samples=%-8d avg-rate=%.1f/s stacks=%v\n", src.Name, src.NumSamples(), src.AvgRate, src.HasStacks)
	}

	if *flagPID == 0 {
		return
	}

	proc := findProcess(procs, *flagPID)
	if proc == nil {
		log.Fatalf("no process with pid %d has samples", *flagPID)
	}

	analysis, err := srv.Analyze(id, proc.Key, stacksanalysis.Filter{}, nil, nil)
	if err != nil {
		log.Fatal(err)
	}
	for _, source := range analysis.Sources {
		fmt.Printf("\ntop %d functions by total, source %d:\n", *flagTop, source)
		for _, fn := range analysis.ListFunctions(source, stacksanalysis.SortByTotal, 0, *flagTop) {
			mod := analysis.Module(fn.Module)
			total := 0
			if c, ok := fn.Hits[source]; ok {
				total = c.Total
			}
			fmt.Printf("  %8d  %s!%s\n", total, mod.Name, fn.Name)
		}
	}
}

func findProcess(procs []*tracemodel.Process, pid int) *tracemodel.Process {
	for _, p := range procs {
		if p.OSPID == pid {
			return p
		}
	}
	return nil
}
