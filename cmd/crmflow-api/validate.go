package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/services"
	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoWorkflowFiles  = errors.New("no workflow files given")
	ErrInvalidWorkflows = errors.New("invalid workflows found")
)

// NewValidateCommand checks workflow definition files (YAML or JSON) the
// same way activation does, without a database.
func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate workflow definition files",
		ArgsUsage: "<file> [file...]",
		Action: func(_ context.Context, command *cli.Command) error {
			if command.Args().Len() == 0 {
				return ErrNoWorkflowFiles
			}

			validate := validator.New(validator.WithRequiredStructEnabled())
			out := command.Root().Writer
			invalid := 0

			for _, path := range command.Args().Slice() {
				wf, err := loadWorkflow(path)
				if err != nil {
					return err
				}

				problems := services.Problems(wf)
				if err := validate.Struct(wf); err != nil {
					problems = append(problems, services.Problem{Message: err.Error()})
				}

				_, _ = fmt.Fprintf(out, "\nWorkflow: %s (%s)\n", wf.Name, path)

				if len(problems) == 0 {
					_, _ = fmt.Fprintln(out, "    VALID")

					continue
				}

				invalid++

				for _, problem := range problems {
					if problem.NodeID != "" {
						_, _ = fmt.Fprintf(out, "    INVALID [%s]: %s\n", problem.NodeID, problem.Message)
					} else {
						_, _ = fmt.Fprintf(out, "    INVALID: %s\n", problem.Message)
					}
				}
			}

			if invalid > 0 {
				return fmt.Errorf("%w: %d of %d", ErrInvalidWorkflows, invalid, command.Args().Len())
			}

			return nil
		},
	}
}

func loadWorkflow(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	wf := &models.Workflow{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, wf)
	default:
		err = json.Unmarshal(data, wf)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	wf.Normalize()

	return wf, nil
}
