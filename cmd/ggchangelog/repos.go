package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/saint0x/ggchangelog/pkg/client"
)

var reposCmd = &cobra.Command{
	Use:   "repos [ID]",
	Short: "List stored repositories, or print the changelog of one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRepos,
}

func init() {
	rootCmd.AddCommand(reposCmd)
}

func runRepos(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c := client.New(serverURL, nil)

	if len(args) == 1 {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid repository id %q", args[0])
		}
		repo, err := c.Repository(ctx, uint(id))
		if err != nil {
			return err
		}
		if repo.Changelog == nil {
			fmt.Printf("%s has no changelog yet\n", repo.FullName)
			return nil
		}
		fmt.Print(repo.Changelog.Markdown(repo.FullName))
		return nil
	}

	repos, err := c.Repositories(ctx)
	if err != nil {
		return err
	}

	titleColor := color.New(color.FgHiCyan, color.Bold)
	dimColor := color.New(color.FgHiBlack)

	fmt.Println()
	titleColor.Printf("  Repositories\n\n")
	if len(repos) == 0 {
		dimColor.Println("  No repositories yet. Run 'ggchangelog generate OWNER/REPO'.")
		return nil
	}
	for _, r := range repos {
		generated := "never"
		if r.LastGeneratedAt != nil {
			generated = r.LastGeneratedAt.Local().Format("2006-01-02 15:04")
		}
		entries := 0
		if r.Changelog != nil {
			entries = r.Changelog.EntryCount()
		}
		fmt.Printf("  %-4d %-40s ", r.ID, r.FullName)
		dimColor.Printf("%3d entries, generated %s\n", entries, generated)
	}
	fmt.Println()
	return nil
}
