// Command machc compiles a YAML state-machine specification document and
// reports diagnostics or exports the compiled table.
//
// Callables in the document are stubbed as synchronous no-ops, so the tool
// checks structure (duplicate transitions, duplicate guards, name
// resolution) without linking implementations.
//
// Usage:
//
//	machc -spec machine.yaml         # validate, print diagnostics
//	machc -spec machine.yaml -dot    # export Graphviz DOT
//	machc -spec machine.yaml -json   # export compiled table as JSON
//
// Environment: MACHC_LOG_LEVEL, MACHC_LOG_SERVICE.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"

	"github.com/statomic/machc"
	"github.com/statomic/machc/internal/log"
	"github.com/statomic/machc/internal/specfile"
	"github.com/statomic/machc/internal/viz"
)

type envConfig struct {
	LogLevel string `env:"MACHC_LOG_LEVEL" envDefault:"info"`
	Service  string `env:"MACHC_LOG_SERVICE" envDefault:"machc"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		specPath = flag.String("spec", "", "path to the YAML specification document (required)")
		dotOut   = flag.Bool("dot", false, "export the compiled table as Graphviz DOT")
		jsonOut  = flag.Bool("json", false, "export the compiled table as JSON")
	)
	flag.Parse()

	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "machc: parse environment: %v\n", err)
		return 2
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Service: cfg.Service})
	logger := log.WithComponent("cli")

	if *specPath == "" {
		fmt.Fprintln(os.Stderr, "machc: -spec is required")
		flag.Usage()
		return 2
	}

	// nil registry: every callable becomes a sync no-op stub.
	spec, compileCfg, err := specfile.Load(*specPath, nil)
	if err != nil {
		logger.Error().Err(err).Str("path", *specPath).Msg("load specification")
		fmt.Fprintf(os.Stderr, "machc: %v\n", err)
		return 1
	}

	m, diags := machc.Compile(spec, compileCfg)
	if diags != nil {
		for _, d := range diags {
			fmt.Fprintln(os.Stderr, d)
		}
		logger.Error().Int("diagnostics", len(diags)).Str("machine", spec.Name()).Msg("specification rejected")
		return 1
	}

	switch {
	case *dotOut:
		fmt.Print(viz.ExportDOT(m.Info()))
	case *jsonOut:
		data, err := viz.ExportJSON(m.Info())
		if err != nil {
			fmt.Fprintf(os.Stderr, "machc: %v\n", err)
			return 1
		}
		fmt.Printf("%s\n", data)
	default:
		info := m.Info()
		fmt.Printf("machine %s: %d states, %d triggers, %d transitions (sync=%v async=%v)\n",
			info.Name, len(info.States), len(info.Triggers), len(info.Transitions), info.Sync, info.Async)
	}
	return 0
}
