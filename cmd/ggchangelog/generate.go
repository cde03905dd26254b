package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/saint0x/ggchangelog/pkg/client"
	"github.com/saint0x/ggchangelog/pkg/github"
	"github.com/saint0x/ggchangelog/pkg/progress"
)

var (
	sinceFlag  string
	untilFlag  string
	outputFlag string
	quietFlag  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate OWNER/REPO | REPO_URL",
	Short: "Generate the changelog of a repository",
	Long: `Generate asks the server to collect and classify the commits of a
repository, streams the progress, and prints the resulting changelog as
Markdown.

Examples:
  ggchangelog generate acme/widgets
  ggchangelog generate https://github.com/acme/widgets --since 2024-05-01
  ggchangelog generate acme/widgets --until 2024-05-31 -o CHANGELOG.md`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&sinceFlag, "since", "", "Start of the window (YYYY-MM-DD or RFC 3339)")
	generateCmd.Flags().StringVar(&untilFlag, "until", "", "End of the window (YYYY-MM-DD or RFC 3339)")
	generateCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Write the Markdown to a file instead of stdout")
	generateCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "Do not show progress")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	owner, repo, err := github.ParseRepoURL(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(serverURL, nil)
	if err := c.Health(ctx); err != nil {
		return fmt.Errorf("server at %s is unavailable: %w", serverURL, err)
	}

	logger.Step("Generating changelog for %s/%s", owner, repo)

	// Subscribe before starting so no step is missed.
	var wg sync.WaitGroup
	ready := make(chan struct{})
	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := c.Progress(streamCtx, owner, repo, func() { close(ready) }, func(ev progress.Event) {
			if quietFlag {
				return
			}
			if ev.Error != "" {
				logger.Error("%3d%% %s", ev.Progress, ev.Error)
				return
			}
			logger.Loading("%3d%% %s", ev.Progress, ev.Step)
		})
		if err != nil {
			logger.Debug("Progress stream ended: %v", err)
		}
		select {
		case <-ready:
		default:
			close(ready)
		}
	}()
	<-ready

	resp, err := c.Generate(ctx, client.GenerateRequest{
		Owner:     owner,
		Repo:      repo,
		StartDate: sinceFlag,
		EndDate:   untilFlag,
	})
	if err != nil {
		cancelStream()
		wg.Wait()
		return fmt.Errorf("changelog generation failed: %w", err)
	}
	wg.Wait()

	logger.Success("Changelog ready: %d commits, %d changes, %d entries",
		resp.Stats.Commits, resp.Stats.Changes, resp.Stats.Entries)

	md := resp.Changelog.Markdown(owner + "/" + repo)
	if outputFlag != "" {
		if err := os.WriteFile(outputFlag, []byte(md), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", outputFlag, err)
		}
		logger.Success("Wrote %s", outputFlag)
		return nil
	}

	fmt.Println()
	color.New(color.FgHiWhite).Print(md)
	return nil
}
