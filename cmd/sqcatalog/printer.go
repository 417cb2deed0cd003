package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

func success(w io.Writer, format string, a ...any) {
	green.Fprintf(w, "✓ "+format+"\n", a...)
}

func warning(w io.Writer, format string, a ...any) {
	yellow.Fprintf(w, "! "+format+"\n", a...)
}

// printError prints err with its kind tag to stderr
func printError(kind string, err error) {
	if kind != "" {
		red.Fprintf(os.Stderr, "%s: ", kind)
	}
	fmt.Fprintln(os.Stderr, err)
}
