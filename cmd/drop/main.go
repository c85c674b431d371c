package main

import (
	"fmt"
	"os"

	"github.com/arkdrop/arkdrop/internal/cli/receiver"
	"github.com/arkdrop/arkdrop/internal/cli/sender"
	"github.com/arkdrop/arkdrop/internal/termio"
)

const (
	version = "v0.1.0"
	banner  = `
 █████╗ ██████╗ ██╗  ██╗██████╗ ██████╗  ██████╗ ██████╗
██╔══██╗██╔══██╗██║ ██╔╝██╔══██╗██╔══██╗██╔═══██╗██╔══██╗
███████║██████╔╝█████╔╝ ██║  ██║██████╔╝██║   ██║██████╔╝
██╔══██║██╔══██╗██╔═██╗ ██║  ██║██╔══██╗██║   ██║██╔═══╝
██║  ██║██║  ██║██║  ██╗██████╔╝██║  ██║╚██████╔╝██║
╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═╝╚═════╝ ╚═╝  ╚═╝ ╚═════╝ ╚═╝
arkdrop ` + version + `
Direct file drops, ticket to ticket.
`
)

func main() {
	termio.Init()
	args := os.Args[1:]
	if len(args) == 0 {
		printBanner()
		printUsage()
		return
	}
	if hasVersionFlag(args) {
		printBanner()
		return
	}

	switch args[0] {
	case "send":
		sender.Run(args[1:])
	case "receive":
		receiver.Run(args[1:])
	default:
		if hasHelpFlag(args) {
			printUsage()
			return
		}
		fmt.Fprintf(termio.Stderr(), "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	w := termio.Stderr()
	fmt.Fprintln(w, "usage: drop <command> [args]")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  send     share files and print a transfer ticket")
	fmt.Fprintln(w, "  receive  download the files behind a ticket")
	fmt.Fprintln(w, "quick examples:")
	fmt.Fprintln(w, "  drop send report.pdf photos.zip")
	fmt.Fprintln(w, "  drop receive --out ./downloads <ticket>")
	fmt.Fprintln(w, "to learn detailed usage:")
	fmt.Fprintln(w, "  drop send --help")
	fmt.Fprintln(w, "  drop receive --help")
}

func printBanner() {
	fmt.Fprint(termio.Stdout(), banner)
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func hasVersionFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}
