package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/campusattend/attendance/internal/attendance"
	"github.com/campusattend/attendance/internal/notify"
	"github.com/campusattend/attendance/internal/queue"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Send defaulter notices now",
	Long: `Computes the current defaulters and mails each one. With --queue the notices
are handed to the worker through the configured queue instead.`,
	Args: cobra.NoArgs,
	RunE: runNotify,
}

func init() {
	notifyCmd.Flags().Bool("queue", false, "Publish notices to the queue instead of sending them")
	rootCmd.AddCommand(notifyCmd)
}

func runNotify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	useQueue, _ := cmd.Flags().GetBool("queue")

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ds, err := a.Service.Defaulters(ctx)
	if err != nil {
		return fmt.Errorf("failed to list defaulters: %w", err)
	}
	if len(ds) == 0 {
		fmt.Println("No defaulters, nothing to send.")
		return nil
	}

	if useQueue {
		n, err := queue.PublishDefaulters(ctx, a.Queue, ds)
		if err != nil {
			return fmt.Errorf("queued %d of %d notices: %w", n, len(ds), err)
		}
		fmt.Printf("Queued %d notices\n", n)
		return nil
	}

	n, err := notify.New(a.Config.SMTP)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(ds),
			progressbar.OptionSetDescription("Sending notices"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
	}

	sum := notify.Dispatch(ctx, n, ds, func(attendance.Defaulter, error) {
		if bar != nil {
			_ = bar.Add(1)
		}
	})
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	if jsonOutput {
		return printJSON(sum)
	}
	fmt.Printf("Sent: %d, failed: %d\n", sum.Sent, sum.Failed)
	if sum.Failed > 0 {
		return fmt.Errorf("%d notices failed", sum.Failed)
	}
	return nil
}
