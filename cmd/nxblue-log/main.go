// Command nxblue-log views and analyzes nxblue protocol log files.
//
// Log files are written by nxblue-device and nxblue-controller when run
// with the -protocol-log flag.
//
// Usage:
//
//	nxblue-log <command> [flags] <file.nxlog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON lines or CSV
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View commands received by the brick
//	nxblue-log view -layer command -direction in device.nxlog
//
//	# Export one connection as CSV
//	nxblue-log export -format csv -conn-id 3f2a9c1e-... controller.nxlog
//
//	# Keep only traffic with one brick
//	nxblue-log filter -peer 00:16:53:1b:59:4d -o ultron.nxlog controller.nxlog
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/nxblue/nxblue-go/cmd/nxblue-log/commands"
	"github.com/nxblue/nxblue-go/pkg/log"
)

const usage = `nxblue-log - nxblue Protocol Log Analyzer

Usage:
  nxblue-log <command> [flags] <file.nxlog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSON lines or CSV
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "nxblue-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// newFlagSet creates a subcommand flag set with the shared filter flags.
func newFlagSet(name, summary string) (*flag.FlagSet, *commands.FilterOptions) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "nxblue-log %s - %s\n\nUsage:\n  nxblue-log %s [flags] <file.nxlog>\n\nFlags:\n", name, summary, name)
		fs.PrintDefaults()
	}

	opts := &commands.FilterOptions{}
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&opts.Peer, "peer", "", "Filter by brick hardware address")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, command, socket)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, state, error)")
	return fs, opts
}

// parseArgs parses flags and returns the log path and filter.
func parseArgs(fs *flag.FlagSet, opts *commands.FilterOptions, args []string) (string, log.Filter) {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}

	filter, err := commands.BuildFilter(*opts)
	exitOnError(err)
	return fs.Arg(0), filter
}

func runView(args []string) {
	fs, opts := newFlagSet("view", "View log file in human-readable format")
	path, filter := parseArgs(fs, opts, args)
	exitOnError(commands.RunView(path, filter, os.Stdout))
}

func runExport(args []string) {
	fs, opts := newFlagSet("export", "Export log file to JSON lines or CSV")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path, filter := parseArgs(fs, opts, args)

	var w io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		exitOnError(err)
		defer f.Close()
		w = f
	}
	exitOnError(commands.RunExport(path, *format, filter, w))
}

func runFilter(args []string) {
	fs, opts := newFlagSet("filter", "Filter log file and write to new file")
	output := fs.String("o", "", "Output file (required)")
	path, filter := parseArgs(fs, opts, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, *output, filter)
	exitOnError(err)
	fmt.Printf("Filtered %d events to %s\n", n, *output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, "nxblue-log stats - Show statistics about the log file\n\nUsage:\n  nxblue-log stats <file.nxlog>\n")
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	exitOnError(commands.RunStats(fs.Arg(0), os.Stdout))
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
