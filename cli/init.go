package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/absmach/fedcoord"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/worker"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var errNoTrainers = errors.New("at least one trainer address is required")

// NewInitCmd asks for the federation settings and writes them as a
// configuration file.
func NewInitCmd() *cobra.Command {
	var (
		output     string
		accessible bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file",
		Long:  `Interactively create a coordinator configuration file.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			cfg := fedcoord.DefaultConfig()
			answers := newInitAnswers(cfg)

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Run ID").
						Description("Leave empty to generate one at startup").
						Value(&answers.runID),
					huh.NewInput().
						Title("Training rounds").
						Value(&answers.rounds).
						Validate(validateUint),
					huh.NewInput().
						Title("Learning rate").
						Value(&answers.lr).
						Validate(validateFloat),
					huh.NewInput().
						Title("Batches per round").
						Value(&answers.batches).
						Validate(validateUint),
					huh.NewSelect[string]().
						Title("Aggregation").
						Options(huh.NewOptions(fl.ModeMean, fl.ModeWeighted)...).
						Value(&answers.aggregation),
				),
				huh.NewGroup(
					huh.NewText().
						Title("Trainers").
						Description("One per line: id address classes, e.g. alice ws://localhost:8777 0-3").
						Value(&answers.trainers).
						Validate(validateTrainers),
					huh.NewInput().
						Title("Evaluator address").
						Value(&answers.evaluator),
					huh.NewConfirm().
						Title("Save the final model?").
						Value(&answers.saveModel),
				),
			).WithAccessible(accessible)

			if err := form.Run(); err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			if err := answers.apply(&cfg); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if err := cfg.Save(output); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logSuccessCmd(*cmd, fmt.Sprintf("Configuration written to %s", output))
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "fedcoord.toml", "Configuration file to write")
	cmd.Flags().BoolVar(&accessible, "accessible", false, "Use plain prompts instead of the interactive form")

	return cmd
}

type initAnswers struct {
	runID       string
	rounds      string
	lr          string
	batches     string
	aggregation string
	trainers    string
	evaluator   string
	saveModel   bool
}

func newInitAnswers(cfg fedcoord.Config) initAnswers {
	a := initAnswers{
		runID:       cfg.Coordinator.RunID,
		rounds:      strconv.FormatUint(cfg.Coordinator.Rounds, 10),
		lr:          strconv.FormatFloat(cfg.Coordinator.LearningRate, 'g', -1, 64),
		batches:     strconv.Itoa(cfg.Coordinator.FederateAfter),
		aggregation: cfg.Coordinator.Aggregation,
		saveModel:   cfg.Coordinator.SaveModel,
	}

	var lines []string
	for _, w := range cfg.Workers {
		switch w.Role {
		case fl.RoleTrainer:
			lines = append(lines, strings.TrimSpace(fmt.Sprintf("%s %s %s", w.ID, w.Address, w.Classes)))
		case fl.RoleEvaluator:
			a.evaluator = w.Address
		}
	}
	a.trainers = strings.Join(lines, "\n")

	return a
}

func (a initAnswers) apply(cfg *fedcoord.Config) error {
	rounds, err := strconv.ParseUint(a.rounds, 10, 64)
	if err != nil {
		return err
	}
	lr, err := strconv.ParseFloat(a.lr, 64)
	if err != nil {
		return err
	}
	batches, err := strconv.Atoi(a.batches)
	if err != nil {
		return err
	}
	trainers, err := parseTrainers(a.trainers)
	if err != nil {
		return err
	}

	cfg.Coordinator.RunID = a.runID
	cfg.Coordinator.Rounds = rounds
	cfg.Coordinator.LearningRate = lr
	cfg.Coordinator.FederateAfter = batches
	cfg.Coordinator.Aggregation = a.aggregation
	cfg.Coordinator.SaveModel = a.saveModel
	cfg.Workers = append(trainers, worker.Worker{
		ID:      "testing",
		Address: a.evaluator,
		Role:    fl.RoleEvaluator,
	})

	return nil
}

func parseTrainers(s string) ([]worker.Worker, error) {
	var workers []worker.Worker
	for line := range strings.Lines(s) {
		fields := strings.Fields(line)
		switch len(fields) {
		case 0:
			continue
		case 2, 3:
		default:
			return nil, fmt.Errorf("expected id, address and optional classes: %q", strings.TrimSpace(line))
		}

		w := worker.Worker{ID: fields[0], Address: fields[1], Role: fl.RoleTrainer}
		if len(fields) == 3 {
			if _, err := fl.ParseClassRanges(fields[2]); err != nil {
				return nil, err
			}
			w.Classes = fields[2]
		}
		workers = append(workers, w)
	}
	if len(workers) == 0 {
		return nil, errNoTrainers
	}

	return workers, nil
}

func validateTrainers(s string) error {
	_, err := parseTrainers(s)

	return err
}

func validateUint(s string) error {
	if _, err := strconv.ParseUint(s, 10, 64); err != nil {
		return errors.New("expected a non negative integer")
	}

	return nil
}

func validateFloat(s string) error {
	if v, err := strconv.ParseFloat(s, 64); err != nil || v <= 0 {
		return errors.New("expected a positive number")
	}

	return nil
}
