package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		fmt.Printf("Schema up to date (%s)\n", a.DB.Driver)
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print per-student attendance and per-lecture counts",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

var defaultersCmd = &cobra.Command{
	Use:   "defaulters",
	Short: "List students below the attendance threshold",
	Args:  cobra.NoArgs,
	RunE:  runDefaulters,
}

func init() {
	rootCmd.AddCommand(migrateCmd, reportCmd, defaultersCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.Service.Report(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to compute report: %w", err)
	}
	if jsonOutput {
		return printJSON(rep)
	}

	fmt.Printf("Sessions: %d\n", rep.TotalSessions)
	fmt.Printf("Events:   %d\n", rep.TotalEvents)
	fmt.Printf("Threshold: %.2f%%\n\n", rep.Threshold)
	fmt.Printf("%-16s %8s %10s\n", "STUDENT", "PRESENT", "PERCENT")
	for _, s := range rep.Students {
		fmt.Printf("%-16s %8d %9.2f%%\n", s.StudentID, s.Present, s.Percentage)
	}
	if len(rep.Lectures) > 0 {
		fmt.Printf("\n%-24s %8s %8s\n", "LECTURE", "EVENTS", "DAYS")
		for _, l := range rep.Lectures {
			fmt.Printf("%-24s %8d %8d\n", l.Lecture, l.Events, l.Sessions)
		}
	}
	return nil
}

func runDefaulters(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ds, err := a.Service.Defaulters(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list defaulters: %w", err)
	}
	if jsonOutput {
		return printJSON(ds)
	}
	if len(ds) == 0 {
		fmt.Println("No defaulters.")
		return nil
	}
	for _, d := range ds {
		fmt.Printf("%-16s %-28s %-32s %6.2f%%\n", d.StudentID, d.Name, d.Email, d.Percentage)
	}
	return nil
}
