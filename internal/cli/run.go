package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/controller"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/poller"
)

// stepEdit is one --set value: <step>.<field>=<value>, step numbers from 1
type stepEdit struct {
	index int
	field model.StepField
	value string
}

func parseStepEdit(s string) (stepEdit, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return stepEdit{}, fmt.Errorf("edit %q: expected <step>.<field>=<value>", s)
	}
	num, name, ok := strings.Cut(key, ".")
	if !ok {
		return stepEdit{}, fmt.Errorf("edit %q: expected <step>.<field>=<value>", s)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 {
		return stepEdit{}, fmt.Errorf("edit %q: invalid step number", s)
	}
	field, err := model.ParseStepField(name)
	if err != nil {
		return stepEdit{}, fmt.Errorf("edit %q: %w", s, err)
	}
	return stepEdit{index: n - 1, field: field, value: value}, nil
}

type runOptions struct {
	sets     []string
	deletes  []int
	adds     int
	planOnly bool
	output   string
}

// pollInterval is swapped by tests
var pollInterval = poller.PollInterval

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <instruction>",
		Short: "Generate a plan, apply edits, record it and wait for the video",
		Long: `Run a whole job: submit the instruction, wait for the plan, apply the
requested edits, save them, execute the plan and wait for the video.

Edits are applied in order: --set, then --add, then --delete.
  videoctl run "Create a Java project in Eclipse" --set 3.target="File menu" --delete 4`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runJob(cmd.Context(), strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "Change a step field: <step>.<field>=<value> (repeatable)")
	cmd.Flags().IntSliceVar(&opts.deletes, "delete", nil, "Delete steps by number")
	cmd.Flags().IntVar(&opts.adds, "add", 0, "Append this many default steps")
	cmd.Flags().BoolVar(&opts.planOnly, "plan-only", false, "Stop after the plan is ready")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Download the video to this file when done")
	return cmd
}

func (a *app) runJob(ctx context.Context, instruction string, opts runOptions) error {
	edits := make([]stepEdit, 0, len(opts.sets))
	for _, s := range opts.sets {
		e, err := parseStepEdit(s)
		if err != nil {
			return err
		}
		edits = append(edits, e)
	}
	for _, n := range opts.deletes {
		if n < 1 {
			return fmt.Errorf("delete %d: invalid step number", n)
		}
	}

	ctrl := controller.New(a.client, a.logger,
		controller.WithPollerOptions(poller.WithInterval(pollInterval)))
	defer ctrl.Close()

	if err := ctrl.SubmitInstruction(ctx, instruction); err != nil {
		return err
	}
	v, err := a.await(ctx, ctrl)
	if err != nil {
		return err
	}
	if v.Status != model.StatusPlanReady {
		return jobFailure(v)
	}

	a.printPlan(v)
	if opts.planOnly {
		return nil
	}

	if err := applyEdits(ctrl, edits, opts.adds, opts.deletes); err != nil {
		return err
	}
	if ctrl.View().Dirty {
		if err := ctrl.SavePlan(ctx); err != nil {
			return err
		}
		a.printf("Plan saved (revision %d)\n", ctrl.View().PlanRevision)
	}

	if err := ctrl.Execute(ctx); err != nil {
		return err
	}
	v, err = a.await(ctx, ctrl)
	if err != nil {
		return err
	}
	if v.Status != model.StatusCompleted {
		return jobFailure(v)
	}

	if a.json {
		return a.printJSON(v)
	}
	a.printf("%s %s\n", badge(v.Status), formatResults(v.Results))
	a.printf("Video:    %s\n", v.VideoURL)
	a.printf("Download: %s\n", v.DownloadURL)

	if opts.output != "" && v.VideoFilename != "" {
		n, err := a.download(ctx, v.VideoFilename, opts.output)
		if err != nil {
			return err
		}
		a.printf("Saved %s (%d bytes)\n", opts.output, n)
	}
	return nil
}

// await follows the controller until polling stops, printing each new status
func (a *app) await(ctx context.Context, ctrl *controller.Controller) (controller.View, error) {
	var lastStatus model.JobStatus
	var lastMessage string
	for {
		v := ctrl.View()
		if !a.json && (v.Status != lastStatus || v.Message != lastMessage) {
			a.printf("%s %s\n", badge(v.Status), v.Message)
			lastStatus, lastMessage = v.Status, v.Message
		}
		if v.Status != "" && model.IsTerminalForPolling(v.Status) && !v.Polling && !v.Loading {
			return v, nil
		}
		select {
		case <-ctrl.Changes():
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}

func (a *app) printPlan(v controller.View) {
	if a.json || v.Plan == nil {
		return
	}
	a.printf("%s (revision %d)\n", headStyle.Render(v.Plan.Goal), v.PlanRevision)
	for _, s := range v.Plan.Steps {
		a.printf("%s\n", formatStep(s))
	}
}

func applyEdits(ctrl *controller.Controller, edits []stepEdit, adds int, deletes []int) error {
	for _, e := range edits {
		if err := ctrl.UpdateStepField(e.index, e.field, e.value); err != nil {
			return fmt.Errorf("step %d: %w", e.index+1, err)
		}
	}
	for i := 0; i < adds; i++ {
		if err := ctrl.AddStep(); err != nil {
			return err
		}
	}

	// highest first so earlier numbers stay valid
	sorted := append([]int(nil), deletes...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	for i, n := range sorted {
		if i > 0 && n == sorted[i-1] {
			continue
		}
		if err := ctrl.DeleteStep(n - 1); err != nil {
			return fmt.Errorf("step %d: %w", n, err)
		}
	}
	return nil
}

func jobFailure(v controller.View) error {
	msg := v.JobError
	if msg == "" {
		msg = v.Banner
	}
	if msg == "" {
		msg = v.Message
	}
	return fmt.Errorf("job %s ended as %s: %s", v.JobID, v.Status, msg)
}
