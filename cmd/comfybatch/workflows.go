package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arlewin/comfybatch/cache"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "Manage the cached workflow information",
}

var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached workflows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := cache.NewStore(cache.WithLogger(logger))
		if err := store.Load(cachePath()); err != nil {
			return err
		}
		names := store.Names()
		if len(names) == 0 {
			fmt.Println("cache is empty")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var workflowsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all cached workflow information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := cache.NewStore(cache.WithLogger(logger))
		if err := store.Load(cachePath()); err != nil {
			return err
		}
		n := store.Len()
		store.Clear()
		if err := store.Save(cachePath()); err != nil {
			return err
		}
		fmt.Printf("dropped %d entries\n", n)
		return nil
	},
}

func init() {
	workflowsCmd.AddCommand(workflowsListCmd)
	workflowsCmd.AddCommand(workflowsClearCmd)
}
