package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusShowFailed bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show progress store state",
	Long:  "Prints all-time registry and session checkpoint counts, and optionally the recorded failures.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, cp, err := loadProgress()
		if err != nil {
			return err
		}

		processed, failed := cp.Counts()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Registry (all-time)\t%d codes\t%s\n", reg.Count(), filepath.Join(cfg.Data.Dir, "registry.json"))
		fmt.Fprintf(w, "Session processed\t%d codes\t%s\n", processed, filepath.Join(cfg.Data.Dir, "checkpoint.json"))
		fmt.Fprintf(w, "Session failed\t%d codes\t\n", failed)
		if err := w.Flush(); err != nil {
			return err
		}

		if !statusShowFailed || failed == 0 {
			return nil
		}

		failures := cp.Failures()
		codes := make([]string, 0, len(failures))
		for code := range failures {
			codes = append(codes, code)
		}
		sort.Strings(codes)

		fmt.Println()
		fw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(fw, "CODE\tATTEMPTS\tLAST FAILURE\tERROR")
		for _, code := range codes {
			rec := failures[code]
			fmt.Fprintf(fw, "%s\t%d\t%s\t%s\n", code, rec.Attempts, rec.Timestamp.Format("2006-01-02 15:04:05"), rec.Error)
		}
		return fw.Flush()
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusShowFailed, "failed", false, "list recorded failures")
	rootCmd.AddCommand(statusCmd)
}
