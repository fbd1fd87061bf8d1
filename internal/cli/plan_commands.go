package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
)

func newPlanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show and change a job's task plan",
	}
	cmd.AddCommand(newPlanShowCmd(a), newPlanSaveCmd(a), newPlanEditCmd(a))
	return cmd
}

func newPlanShowCmd(a *app) *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Print the saved plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, rev, err := a.client.GetPlan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			switch {
			case a.json:
				return a.printJSON(plan)
			case asYAML:
				return writePlanYAML(a.out, plan)
			}

			a.printf("%s (revision %d)\n", headStyle.Render(plan.Goal), rev)
			for _, p := range plan.Prerequisites {
				a.printf("  requires: %s\n", p)
			}
			for _, s := range plan.Steps {
				a.printf("%s\n", formatStep(s))
			}
			if plan.SuccessCriteria != "" {
				a.printf("Success: %s\n", plan.SuccessCriteria)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print the plan as YAML, ready for plan save")
	return cmd
}

func newPlanSaveCmd(a *app) *cobra.Command {
	var (
		file     string
		revision int
	)

	cmd := &cobra.Command{
		Use:   "save <job-id>",
		Short: "Replace the plan with one read from a YAML file",
		Long: `Replace the plan with one read from a YAML file (- for stdin).

The save only succeeds when the plan on the server is still at --revision.
Use --revision 0 to overwrite whatever is there.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := readPlanFile(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("revision") {
				if _, revision, err = a.client.GetPlan(cmd.Context(), args[0]); err != nil {
					return err
				}
			}
			return a.savePlan(cmd, args[0], *plan, revision)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Plan file")
	cmd.Flags().IntVar(&revision, "revision", 0, "Revision the edit is based on (default: current)")
	return cmd
}

func newPlanEditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <job-id>",
		Short: "Edit the plan in $EDITOR and save it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, rev, err := a.client.GetPlan(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			f, err := os.CreateTemp("", "plan-*.yaml")
			if err != nil {
				return err
			}
			defer os.Remove(f.Name())
			if err := writePlanYAML(f, plan); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			editor := os.Getenv("EDITOR")
			if editor == "" {
				editor = "vi"
			}
			ed := exec.CommandContext(cmd.Context(), editor, f.Name())
			ed.Stdin, ed.Stdout, ed.Stderr = os.Stdin, os.Stdout, os.Stderr
			if err := ed.Run(); err != nil {
				return fmt.Errorf("editor failed: %w", err)
			}

			edited, err := readPlanFile(f.Name(), nil)
			if err != nil {
				return err
			}
			return a.savePlan(cmd, args[0], *edited, rev)
		},
	}
}

func (a *app) savePlan(cmd *cobra.Command, jobID string, plan model.TaskPlan, revision int) error {
	model.Renumber(plan.Steps)
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}
	rev, err := a.client.SavePlan(cmd.Context(), jobID, plan, revision)
	if err != nil {
		return err
	}
	if a.json {
		return a.printJSON(model.PlanUpdateResponse{Success: true, Message: "Plan saved", PlanRevision: rev})
	}
	a.printf("Plan saved (revision %d)\n", rev)
	return nil
}

func writePlanYAML(w io.Writer, plan *model.TaskPlan) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(plan); err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	return enc.Close()
}

// readPlanFile decodes a YAML plan from path, or from stdin when path is "-"
func readPlanFile(path string, stdin io.Reader) (*model.TaskPlan, error) {
	var data []byte
	var err error
	if path == "-" {
		if stdin == nil {
			return nil, fmt.Errorf("no plan input")
		}
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return decodePlan(data)
}

func decodePlan(data []byte) (*model.TaskPlan, error) {
	var plan model.TaskPlan
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if plan.Prerequisites == nil {
		plan.Prerequisites = []string{}
	}
	return &plan, nil
}
