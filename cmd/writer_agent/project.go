package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/content-writer/internal/db"
	"github.com/jonathan/content-writer/internal/observability"
	"github.com/jonathan/content-writer/internal/pipeline/stages"
	"github.com/jonathan/content-writer/internal/types"
)

var (
	createTopic    string
	createLanguage string
	createSeedFile string

	statusProject string
	statusVerbose bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project",
	Long:  `Create a writing project for a topic. The seed document, if given, is read from a file and fed to knowledge building.`,
	RunE:  runCreate,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a project's stage, status, section progress and runs",
	RunE:  runStatus,
}

func init() {
	createCmd.Flags().StringVarP(&createTopic, "topic", "t", "", "Article topic (required)")
	createCmd.Flags().StringVarP(&createLanguage, "language", "l", "", "Article language (defaults to config default_language)")
	createCmd.Flags().StringVar(&createSeedFile, "seed-file", "", "Path to a seed document")
	_ = createCmd.MarkFlagRequired("topic")

	statusCmd.Flags().StringVarP(&statusProject, "project", "p", "", "Project ID (required)")
	statusCmd.Flags().BoolVarP(&statusVerbose, "verbose", "v", false, "Also show the brief and the section outline")
	_ = statusCmd.MarkFlagRequired("project")

	rootCmd.AddCommand(createCmd, statusCmd)
}

func parseID(flag, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s must be a UUID: %w", flag, err)
	}
	return id, nil
}

func runCreate(cmd *cobra.Command, _ []string) error {
	req := types.CreateProjectRequest{Topic: strings.TrimSpace(createTopic), Language: createLanguage}
	if createSeedFile != "" {
		data, err := os.ReadFile(createSeedFile)
		if err != nil {
			return fmt.Errorf("failed to read seed document: %w", err)
		}
		req.SeedDocument = strings.TrimSpace(string(data))
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid project: %w", err)
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	in := &db.ProjectInput{Topic: req.Topic, Language: req.Language}
	if in.Language == "" {
		in.Language = a.cfg.DefaultLanguage
	}
	if req.SeedDocument != "" {
		in.SeedDocument = &req.SeedDocument
	}

	project, err := a.store.CreateProject(cmd.Context(), in)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (%s, %s)\n", project.ID, project.Topic, project.Language)
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	id, err := parseID("project", statusProject)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := a.orch.GetProjectState(cmd.Context(), id)
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(cmd.OutOrStdout())
	printer.PrintProjectState(state)
	if !statusVerbose {
		return nil
	}

	brief, err := a.store.LatestArtifact(cmd.Context(), id, db.ArtifactBrief)
	if err != nil {
		return fmt.Errorf("failed to load brief: %w", err)
	}
	if brief != nil {
		items, err := stages.ParseBrief(brief.Content)
		if err != nil {
			a.logger.Warn("stored brief is malformed", zap.String("artifact_id", brief.ID.String()), zap.Error(err))
		}
		printer.PrintBrief(items)
	}

	sections, err := a.store.ListSections(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("failed to load sections: %w", err)
	}
	printer.PrintSections(sections)
	return nil
}
