package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gametime-project/gametime"
)

func main() {
	if err := run(os.Args[1:]); err == flag.ErrHelp {
		os.Exit(1)
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var cmd string
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "", "-h", "--help", "help":
		usage()
		return flag.ErrHelp
	case "config":
		return runConfig(args)
	default:
		return fmt.Errorf(`gametime %s: unknown command`, cmd)
	}
}

// runConfig prints the effective analysis configuration, optionally
// merged from a TOML file.
func runConfig(args []string) error {
	fs := flag.NewFlagSet("gametime-config", flag.ContinueOnError)
	path := fs.String("config", "", "path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := gametime.DefaultConfig()
	if *path != "" {
		var err error
		if cfg, err = gametime.LoadConfig(*path); err != nil {
			return err
		}
	}

	fmt.Printf("word_size         = %d\n", cfg.WordSize)
	fmt.Printf("big_endian        = %v\n", cfg.BigEndian)
	fmt.Printf("constraint_prefix = %q\n", cfg.ConstraintPrefix)
	fmt.Printf("temp_var_prefix   = %q\n", cfg.TempVarPrefix)
	fmt.Printf("temp_index_prefix = %q\n", cfg.TempIndexPrefix)
	fmt.Printf("temp_ptr_prefix   = %q\n", cfg.TempPtrPrefix)
	fmt.Printf("field_prefix      = %q\n", cfg.FieldPrefix)
	fmt.Printf("aggregate_prefix  = %q\n", cfg.AggregatePrefix)
	fmt.Printf("efc_prefix        = %q\n", cfg.EFCPrefix)
	fmt.Printf("assume_func       = %q\n", cfg.AssumeFunc)
	fmt.Printf("simulate_func     = %q\n", cfg.SimulateFunc)
	fmt.Printf("flat_arrays       = %v\n", cfg.FlatArrays)
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, `
Gametime analyzes worst-case execution paths of C functions.

Usage:

	gametime <command> [arguments]

The commands are:

	config      print the effective analysis configuration
	help        this screen
`[1:])
}
