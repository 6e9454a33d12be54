package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"goalbreaker/internal/domain"
)

var treeCmd = &cobra.Command{
	Use:   "tree [turn]",
	Short: "Show the goal tree, planned steps included",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTree,
}

var pathCmd = &cobra.Command{
	Use:   "path [turn]",
	Short: "Show the breadcrumb path from the root goal to a turn",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPath,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved goals, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var openCmd = &cobra.Command{
	Use:   "open <goal-id>",
	Short: "Make a saved goal the current conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpen,
}

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Start an empty conversation",
	Args:  cobra.NoArgs,
	RunE:  runNew,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <goal-id>",
	Short: "Delete a saved goal",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var clearHistoryCmd = &cobra.Command{
	Use:   "clear-history",
	Short: "Delete every saved goal of the user",
	Args:  cobra.NoArgs,
	RunE:  runClearHistory,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List selectable models",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

func init() {
	clearHistoryCmd.Flags().Bool("yes", false, "confirm deleting everything")
	rootCmd.AddCommand(treeCmd, pathCmd, historyCmd, openCmd, newCmd, deleteCmd, clearHistoryCmd, modelsCmd)
}

func runTree(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		parentID := ""
		if len(args) == 1 {
			turn, err := a.resolveTurn(args[0])
			if err != nil {
				return err
			}
			parentID = turn.ID
		}
		nodes := a.engine.Tree(parentID)
		if len(nodes) == 0 {
			fmt.Fprintln(a.out, "Nothing to show")
			return nil
		}
		printTree(a.out, nodes, 0)
		return nil
	})
}

func runPath(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		ref := ""
		if len(args) == 1 {
			ref = args[0]
		}
		turn, err := a.resolveTurn(ref)
		if err != nil {
			return err
		}
		printCrumbs(a.out, a.engine.Breadcrumbs(turn.ID))
		return nil
	})
}

func runHistory(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		items, err := a.engine.History(ctx)
		if err != nil {
			return err
		}
		printHistory(a.out, items)
		return nil
	})
}

func runOpen(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		items, err := a.engine.History(ctx)
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.ID != args[0] {
				continue
			}
			if err := a.engine.OpenGoal(ctx, item); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Opened %s (%d turns)\n", item.ID, a.engine.Store().Len())
			return nil
		}
		return &domain.NotFoundError{Message: fmt.Sprintf("goal %s not found", args[0])}
	})
}

func runNew(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		a.engine.NewChat(ctx)
		fmt.Fprintln(a.out, "Started a new conversation")
		return nil
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.engine.DeleteGoal(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted %s\n", args[0])
		return nil
	})
}

func runClearHistory(cmd *cobra.Command, args []string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return &domain.ValidationError{Message: "refusing to delete every goal without --yes"}
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.engine.ClearHistory(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "History cleared")
		return nil
	})
}

func runModels(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		models, err := a.engine.Models(ctx)
		if err != nil {
			a.logger.Warn("backend catalog unavailable, using the built-in one", "error", err)
			models = a.catalog.Models()
		}
		printModels(a.out, models)
		return nil
	})
}
