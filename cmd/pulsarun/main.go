// Command pulsarun runs a simulation described by a YAML document.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/pulsar3d/pulsar"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <config.yaml>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := pulsar.LoadConfig(path)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			fmt.Fprintf(os.Stderr, "pulsarun: %v\n", err)
			os.Exit(1)
		}
		// Malformed document: fall back to the stock simulation so a
		// half-edited file still shows something on screen.
		fmt.Fprintf(os.Stderr, "pulsarun: warning: %v; using defaults\n", err)
		cfg = pulsar.DefaultConfig()
	}

	sim, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pulsarun: %v\n", err)
		os.Exit(1)
	}
	sim.WithLogger(pulsar.NewDefaultLogger("pulsarun", *debug))

	if err := sim.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "pulsarun: %v\n", err)
		os.Exit(1)
	}
}
