package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/members-only/backend/internal/frame"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// framecheck fetches a deployed Frame and prints what a client would render.

var (
	timeout time.Duration
	retries int
	asJSON  bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "framecheck <url>",
	Short: "Fetch a Frame URL and print its parsed screen",
	Args:  cobra.ExactArgs(1),
	RunE:  run,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "per-request timeout")
	rootCmd.Flags().IntVar(&retries, "retries", 2, "retries on network errors and 5xx")
	rootCmd.Flags().BoolVar(&asJSON, "json", false, "print the screen as JSON")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log fetch attempts")
}

func run(cmd *cobra.Command, args []string) error {
	log := zap.NewNop()
	if verbose {
		log, _ = zap.NewDevelopment()
	}
	defer log.Sync()

	screen, err := frame.NewFetcher(timeout, retries, log).Fetch(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(screen)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "title: %s\n", screen.Title)
	fmt.Fprintf(out, "image: %s\n", screen.Image)
	if screen.Text != "" {
		fmt.Fprintf(out, "text:  %s\n", screen.Text)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tLABEL\tACTION\tVALUE/TARGET")
	for i, in := range screen.Intents {
		dest := in.Value
		if in.Action != frame.ActionPost {
			dest = in.Target
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, in.Label, in.Action, dest)
	}
	return w.Flush()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
