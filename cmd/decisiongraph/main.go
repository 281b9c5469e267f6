package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/decisiongraph/core/pkg/cell"
	"github.com/decisiongraph/core/pkg/config"
	"github.com/decisiongraph/core/pkg/genesis"
	"github.com/decisiongraph/core/pkg/signing"
	"github.com/decisiongraph/core/pkg/wal"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out from main for testability.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 0
	}

	switch args[1] {
	case "init":
		return runInitCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "wal":
		if len(args) < 3 {
			fmt.Fprintln(stderr, "Usage: decisiongraph wal <compact> --dir <path>")
			return 2
		}
		return runWALCmd(args[2], args[3:], stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, "decisiongraph v0.1.0")
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorBlue  = "\033[34m"
	colorGray  = "\033[37m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sDecisionGraph%s\n", colorBold+colorBlue, colorReset)
	fmt.Fprintf(w, "%sA deterministic reasoning ledger for regulated decisions.%s\n", colorGray, colorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", colorBold, colorReset)
	fmt.Fprintln(w, "  decisiongraph <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sCOMMANDS:%s\n", colorBold+colorCyan, colorReset)
	printCommand(w, "init", "Create a new graph's Genesis cell")
	printCommand(w, "verify", "Verify a Genesis cell's structural integrity")
	printCommand(w, "wal", "Manage a write-ahead log segment directory (compact)")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-10s%s %s\n", colorGreen, name, colorReset, desc)
}

func runInitCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		graphName  string
		rootNS     string
		creator    string
		out        string
		bootstrap  bool
		hashScheme string
	)
	fs.StringVar(&graphName, "name", "", "graph name (REQUIRED)")
	fs.StringVar(&rootNS, "namespace", "", "root namespace, no dots (REQUIRED)")
	fs.StringVar(&creator, "creator", "", "creator identity")
	fs.StringVar(&out, "out", "genesis.json", "output path for the sealed Genesis cell")
	fs.BoolVar(&bootstrap, "bootstrap", true, "omit the Genesis signature (bootstrap mode)")
	fs.StringVar(&hashScheme, "hash-scheme", string(cell.HashSchemeCanonicalJCS), "canon:rfc8785:v1 or legacy:concat:v1")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if graphName == "" || rootNS == "" {
		fmt.Fprintln(stderr, "Error: --name and --namespace are required")
		fs.Usage()
		return 2
	}

	var signer *signing.Signer
	if !bootstrap {
		s, err := signing.NewSigner("genesis-key")
		if err != nil {
			fmt.Fprintf(stderr, "Error: generating genesis signer: %v\n", err)
			return 1
		}
		signer = s
	}

	g, err := genesis.Create(genesis.Options{
		GraphName:     graphName,
		RootNamespace: rootNS,
		Creator:       creator,
		SystemTime:    time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		HashScheme:    cell.HashScheme(hashScheme),
		Bootstrap:     bootstrap,
		Signer:        signer,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: creating genesis cell: %v\n", err)
		return 1
	}

	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "Error: encoding genesis cell: %v\n", err)
		return 1
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		fmt.Fprintf(stderr, "Error: writing %s: %v\n", out, err)
		return 1
	}

	fmt.Fprintf(stdout, "Genesis cell created: %s (graph_id=%s)\n", out, g.Header.GraphID)
	return 0
}

func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var genesisPath string
	var strict bool
	fs.StringVar(&genesisPath, "genesis", "", "path to a sealed Genesis cell JSON file (REQUIRED)")
	fs.BoolVar(&strict, "strict", false, "reject a bootstrap-mode Genesis cell that carries a signature")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if genesisPath == "" {
		fmt.Fprintln(stderr, "Error: --genesis is required")
		fs.Usage()
		return 2
	}

	data, err := os.ReadFile(genesisPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: reading %s: %v\n", genesisPath, err)
		return 1
	}

	var g cell.Cell
	if err := json.Unmarshal(data, &g); err != nil {
		fmt.Fprintf(stderr, "Error: decoding %s: %v\n", genesisPath, err)
		return 1
	}

	ok, failures := genesis.Verify(g, signing.NewKeyRing(), strict)
	if ok {
		fmt.Fprintf(stdout, "OK: %s is a valid Genesis cell\n", genesisPath)
		return 0
	}

	fmt.Fprintf(stderr, "FAIL: %s failed %d structural check(s)\n", genesisPath, len(failures))
	for _, f := range failures {
		fmt.Fprintf(stderr, "  - %s: %s\n", f.Check, f.Message)
	}
	return 1
}

func runWALCmd(sub string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("wal "+sub, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var dir string
	fs.StringVar(&dir, "dir", config.Load().WALDir, "WAL segment directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	switch sub {
	case "compact":
		w, records, err := wal.Open(dir, config.Load().WALSegmentMaxBytes)
		if err != nil {
			fmt.Fprintf(stderr, "Error: opening WAL at %s: %v\n", dir, err)
			return 1
		}
		defer w.Close()
		if err := w.Compact(); err != nil {
			fmt.Fprintf(stderr, "Error: compacting WAL at %s: %v\n", dir, err)
			return 1
		}
		fmt.Fprintf(stdout, "Compacted %s (%d records)\n", dir, len(records))
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown wal subcommand: %s\n", sub)
		return 2
	}
}
