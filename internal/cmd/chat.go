package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"goalbreaker/internal/domain"
	"goalbreaker/internal/domain/models/goal"
	"goalbreaker/internal/service/goal/conversation"
	"goalbreaker/internal/service/goal/navigation"
)

var askCmd = &cobra.Command{
	Use:   "ask <goal>",
	Short: "Ask the selected models to break a goal down",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var drillCmd = &cobra.Command{
	Use:   "drill <turn> <step>",
	Short: "Break one planned step down further",
	Long: `Opens a sub-conversation for step <step> (1-based) of the plan in <turn>.
<turn> is a turn id, a unique prefix of one, or "last".`,
	Args: cobra.ExactArgs(2),
	RunE: runDrill,
}

var editCmd = &cobra.Command{
	Use:   "edit <turn> <message>",
	Short: "Re-ask a turn with a new message as a new version",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runEdit,
}

var versionCmd = &cobra.Command{
	Use:   "version <turn> <prev|next>",
	Short: "Show the previous or next version of a turn",
	Args:  cobra.ExactArgs(2),
	RunE:  runVersion,
}

var switchCmd = &cobra.Command{
	Use:   "switch <turn> <old-model> <new-model>",
	Short: "Re-run a turn with one model replaced, as a new version",
	Args:  cobra.ExactArgs(3),
	RunE:  runSwitch,
}

var showCmd = &cobra.Command{
	Use:   "show [turn]",
	Short: "Print a turn of the current conversation (default: all)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShow,
}

func init() {
	askCmd.Flags().StringSliceP("models", "m", nil, "models to ask (default: catalog defaults)")
	askCmd.Flags().Bool("new", false, "start a new conversation first")
	drillCmd.Flags().String("model", "", "model that answers (default: the one that planned the step)")
	editCmd.Flags().StringSliceP("models", "m", nil, "models to ask (default: the turn's current models)")

	rootCmd.AddCommand(askCmd, drillCmd, editCmd, versionCmd, switchCmd, showCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	models, _ := cmd.Flags().GetStringSlice("models")
	fresh, _ := cmd.Flags().GetBool("new")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if fresh {
			a.engine.NewChat(ctx)
		}
		models, err := a.resolveModels(models)
		if err != nil {
			return err
		}

		a.watch()
		turn, err := a.engine.StartTurn(text, models)
		if err != nil {
			return err
		}
		return a.finish(ctx, turn.ID)
	})
}

func runDrill(cmd *cobra.Command, args []string) error {
	model, _ := cmd.Flags().GetString("model")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		parent, err := a.resolveTurn(args[0])
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return &domain.ValidationError{Message: fmt.Sprintf("step must be a positive number, got %q", args[1])}
		}

		agent, ok := planningAgent(parent, model)
		if !ok || n > len(agent.Steps()) {
			return &domain.NotFoundError{Message: fmt.Sprintf("turn %s has no step %d", shortID(parent.ID), n)}
		}
		step := agent.Steps()[n-1]
		if model == "" {
			model = agent.ModelID
		}

		a.watch()
		label := navigation.StepLabel(parent.StepNumber(), n-1)
		turn, err := a.engine.DrillDown(parent.ID, label, step.Step, model, step.Description)
		if err != nil {
			return err
		}
		return a.finish(ctx, turn.ID)
	})
}

// planningAgent picks the agent whose plan is drilled into: the named model,
// or the first agent that produced steps
func planningAgent(t goal.Turn, modelID string) (goal.AgentState, bool) {
	if modelID != "" {
		if a, ok := t.Agents.Get(modelID); ok && len(a.Steps()) > 0 {
			return a, true
		}
	}
	for _, a := range t.Agents {
		if len(a.Steps()) > 0 {
			return a, true
		}
	}
	return goal.AgentState{}, false
}

func runEdit(cmd *cobra.Command, args []string) error {
	text := strings.Join(args[1:], " ")
	models, _ := cmd.Flags().GetStringSlice("models")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		turn, err := a.resolveTurn(args[0])
		if err != nil {
			return err
		}

		a.watch()
		vi, err := a.engine.EditMessage(turn.ID, text, models)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "version %d of turn %s\n", vi+1, shortID(turn.ID))
		return a.finish(ctx, turn.ID)
	})
}

func runVersion(cmd *cobra.Command, args []string) error {
	dir, err := conversation.ParseDirection(args[1])
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		turn, err := a.resolveTurn(args[0])
		if err != nil {
			return err
		}
		if _, ok := a.engine.NavigateBranch(turn.ID, dir); !ok {
			fmt.Fprintf(a.out, "no %s version\n", dir)
		}
		turn, _ = a.engine.Store().Turn(turn.ID)
		printTurn(a.out, turn, time.Now())
		return nil
	})
}

func runSwitch(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		turn, err := a.resolveTurn(args[0])
		if err != nil {
			return err
		}

		a.watch()
		if _, err := a.engine.SwitchAgent(turn.ID, args[1], args[2]); err != nil {
			return err
		}
		return a.finish(ctx, turn.ID)
	})
}

func runShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if len(args) == 1 {
			turn, err := a.resolveTurn(args[0])
			if err != nil {
				return err
			}
			printTurn(a.out, turn, time.Now())
			return nil
		}

		turns := a.engine.Store().Turns()
		if len(turns) == 0 {
			fmt.Fprintln(a.out, "Conversation is empty")
		}
		for _, t := range turns {
			printTurn(a.out, t, time.Now())
		}
		return nil
	})
}

// finish waits for the answers of turnID and prints them
func (a *app) finish(ctx context.Context, turnID string) error {
	a.wait(ctx)
	turn, ok := a.engine.Store().Turn(turnID)
	if !ok {
		return &domain.NotFoundError{Message: fmt.Sprintf("turn %s not found", turnID)}
	}
	fmt.Fprintln(a.out)
	printTurn(a.out, turn, time.Now())
	return nil
}
