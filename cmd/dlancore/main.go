// Command dlancore runs a D-LAN core node: file manager, peer
// manager, network listener, download manager, and upload manager,
// wired together per SPEC_FULL.md.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dlan-project/dlan-core/build"
	"github.com/dlan-project/dlan-core/config"
	"github.com/dlan-project/dlan-core/core"
	"github.com/dlan-project/dlan-core/persist"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "dlancore:", err)
		os.Exit(1)
	}
}

func run() error {
	dataDir := defaultDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	log, err := persist.NewLogger(filepath.Join(dataDir, "dlancore.log"))
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer log.Close()

	if build.GitRevision != "" {
		log.Printf("dlancore v%s (%s)\n", build.Version, build.GitRevision)
	} else {
		log.Printf("dlancore v%s\n", build.Version)
	}

	cfg := config.Default()
	cfg.FileQueuePath = filepath.Join(dataDir, cfg.FileQueuePath)
	for _, rep := range cfg.Sanitize() {
		log.Println("warning:", rep.String())
	}

	n, err := core.NewNode(uuid.NewString(), cfg, dataDir, log)
	if err != nil {
		return fmt.Errorf("construct node: %w", err)
	}
	if err := n.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	defer n.Stop()

	log.Println("dlancore is running; type 'help' for commands")
	runCLI(os.Stdin, os.Stdout)
	return nil
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".dlancore")
	}
	return ".dlancore"
}

// runCLI is the minimal stdin line reader of spec.md §6.1: it
// recognizes "quit" and "help"; any other input prints help.
func runCLI(in *os.File, out *os.File) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return
		}
		switch scanner.Text() {
		case "quit":
			return
		case "help":
			fmt.Fprintln(out, "commands: quit, help")
		default:
			fmt.Fprintln(out, "unrecognized command; commands: quit, help")
		}
	}
}
