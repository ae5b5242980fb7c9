package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/content-writer/internal/events"
	"github.com/jonathan/content-writer/internal/pipeline"
)

var (
	stageProject string
	stageNumber  int
	stageAsync   bool

	rewindProject string
	rewindTo      int

	cancelProject string
	cancelRun     string
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Run one pipeline stage for a project",
	Long: `Run a stage and print its progress. Stage 5 generates every remaining section and
resumes after the last completed one.

With --async the run ID is printed as soon as the run is acquired, so it can be cancelled
from another shell while this process waits for the run to finish.`,
	RunE: runStageCmd,
}

var rewindCmd = &cobra.Command{
	Use:   "rewind",
	Short: "Delete the output of a stage and everything after it",
	RunE:  runRewind,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a running stage",
	RunE:  runCancel,
}

func init() {
	stageCmd.Flags().StringVarP(&stageProject, "project", "p", "", "Project ID (required)")
	stageCmd.Flags().IntVarP(&stageNumber, "stage", "s", 0, "Stage number 1-5 (required)")
	stageCmd.Flags().BoolVar(&stageAsync, "async", false, "Print the run ID before the stage finishes")
	_ = stageCmd.MarkFlagRequired("project")
	_ = stageCmd.MarkFlagRequired("stage")

	rewindCmd.Flags().StringVarP(&rewindProject, "project", "p", "", "Project ID (required)")
	rewindCmd.Flags().IntVar(&rewindTo, "to", 0, "Stage to redo, 1-5 (required)")
	_ = rewindCmd.MarkFlagRequired("project")
	_ = rewindCmd.MarkFlagRequired("to")

	cancelCmd.Flags().StringVarP(&cancelProject, "project", "p", "", "Project ID (required)")
	cancelCmd.Flags().StringVar(&cancelRun, "run", "", "Run ID (required)")
	_ = cancelCmd.MarkFlagRequired("project")
	_ = cancelCmd.MarkFlagRequired("run")

	rootCmd.AddCommand(stageCmd, rewindCmd, cancelCmd)
}

func progressPrinter(w io.Writer) pipeline.ProgressFunc {
	return func(e events.Event) {
		switch e.Type {
		case events.TypeStageStarted:
			_, _ = fmt.Fprintf(w, "Stage %d (%s) started\n", e.Stage, e.StageName)
		case events.TypeSectionStarted:
			_, _ = fmt.Fprintf(w, "  [%d/%d] %s\n", *e.Section+1, e.Total, e.Heading)
		case events.TypeSectionCompleted:
			_, _ = fmt.Fprintf(w, "  [%d/%d] done\n", e.Completed, e.Total)
		case events.TypeStageCompleted:
			_, _ = fmt.Fprintf(w, "Stage %d completed (%d tokens)\n", e.Stage, e.Tokens)
		case events.TypeStageFailed:
			_, _ = fmt.Fprintf(w, "Stage %d failed: %s\n", e.Stage, e.Message)
		case events.TypeRunCancelled:
			_, _ = fmt.Fprintf(w, "Stage %d cancelled\n", e.Stage)
		}
	}
}

func runStageCmd(cmd *cobra.Command, _ []string) error {
	id, err := parseID("project", stageProject)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	progress := pipeline.WithProgress(progressPrinter(out))

	if stageAsync {
		run, err := a.orch.StartStage(ctx, id, stageNumber, progress)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Run %s started; cancel with: writer_agent cancel --project %s --run %s\n", run.ID, id, run.ID)
		return a.orch.Wait()
	}

	result, err := a.orch.RunStage(ctx, id, stageNumber, progress)
	if err != nil {
		return err
	}
	if result.Project != nil {
		_, _ = fmt.Fprintf(out, "Project is now at stage %d, status %s\n", result.Project.CurrentStage, result.Project.Status)
	}
	return nil
}

func runRewind(cmd *cobra.Command, _ []string) error {
	id, err := parseID("project", rewindProject)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	project, err := a.orch.Rewind(cmd.Context(), id, rewindTo)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Rewound to stage %d; project is at stage %d, status %s\n", rewindTo, project.CurrentStage, project.Status)
	return nil
}

func runCancel(cmd *cobra.Command, _ []string) error {
	id, err := parseID("project", cancelProject)
	if err != nil {
		return err
	}
	runID, err := parseID("run", cancelRun)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.orch.CancelRun(cmd.Context(), runID, id)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Run %s (stage %d) is %s\n", run.ID, run.Stage, run.Status)
	return nil
}
