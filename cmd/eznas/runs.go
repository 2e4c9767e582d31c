package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the converge run log",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Show one run's stage events",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	runsListCmd.Flags().IntP("limit", "n", 20, "maximum runs to list")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	records, err := openStore(true).ListRuns(limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, record := range records {
		status := "running"
		if record.OK != nil {
			status = "failed"
			if *record.OK {
				status = "ok"
			}
		}
		fmt.Printf("%-36s  %-7s  %s\n", record.RunID, status, record.Summary)
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	record, err := openStore(true).GetRun(args[0])
	if err != nil {
		return &exitError{code: 1, message: err.Error()}
	}
	fmt.Printf("Run %s\n", record.RunID)
	printEvents(record.Events)
	if record.OK != nil {
		fmt.Println()
		if *record.OK {
			fmt.Printf("ok: %s\n", record.Summary)
		} else {
			fmt.Printf("failed: %s\n", record.Summary)
		}
	}
	return nil
}
