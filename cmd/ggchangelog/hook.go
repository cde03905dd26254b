package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saint0x/ggchangelog/pkg/github"
	"github.com/saint0x/ggchangelog/pkg/hooks"
)

var (
	hookPath  string
	hookForce bool
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Manage git hooks that refresh the changelog after a pull",
}

var hookInstallCmd = &cobra.Command{
	Use:   "install OWNER/REPO | REPO_URL",
	Short: "Install post-merge and post-rewrite hooks in a local clone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, repo, err := github.ParseRepoURL(args[0])
		if err != nil {
			return err
		}
		return hooks.New(newLogger()).Install(hookPath, hooks.Target{
			ServerURL: serverURL,
			Owner:     owner,
			Repo:      repo,
		}, hookForce)
	},
}

var hookRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the hooks installed by ggchangelog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		removed, err := hooks.New(newLogger()).Remove(hookPath)
		if err != nil {
			return err
		}
		if len(removed) == 0 {
			fmt.Println("No ggchangelog hooks found")
			return nil
		}
		fmt.Printf("Removed %v\n", removed)
		return nil
	},
}

func init() {
	wd, _ := os.Getwd()
	hookCmd.PersistentFlags().StringVar(&hookPath, "path", wd, "Path of the local git repository")
	hookInstallCmd.Flags().BoolVar(&hookForce, "force", false, "Overwrite hooks not installed by ggchangelog")

	hookCmd.AddCommand(hookInstallCmd, hookRemoveCmd)
	rootCmd.AddCommand(hookCmd)
}
