package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const rule = "======================================================================"

// startSpinner shows progress on stderr unless JSON output was requested. The returned
// func stops it.
func startSpinner(cmd *cobra.Command, jsonOutput bool, suffix string) func() {
	if jsonOutput {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
	s.Suffix = suffix
	s.Start()
	return s.Stop
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, "\n"+rule)
	fmt.Fprintln(w, color.GreenString("  %s", title))
	fmt.Fprintln(w, rule)
}

func printField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %-20s %s\n", label+":", value)
}

func printFooter(w io.Writer) {
	fmt.Fprint(w, rule+"\n\n")
}

func coloredVerdict(ok bool, reason string) string {
	if ok {
		return color.GreenString("VALID")
	}
	return color.RedString("INVALID (%s)", reason)
}
