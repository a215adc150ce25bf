package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"go-image-organizer/internal/models"
	"go-image-organizer/internal/pipeline"
)

// Package-level variables for analyze flags
var (
	analyzeProjectFlag string
	analyzeIDsFlag     []string
	analyzeModelFlag   string
	analyzeModels      []string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Ask the AI analyzer for names and labels",
	Long: `Sends every image of the project that has not been analyzed yet (or
only the given ids) to the analyzer. The suggested filename, description,
tags, colors and category are stored on each record; nothing is renamed.

The analyzer needs an API key: set Analyzer.ApiKey in the config file,
ORGANIZER_ANALYZER_APIKEY, GEMINI_API_KEY or pass --api-key.

Examples:
  image-organizer analyze --project holiday
  image-organizer analyze --project holiday --ids 3f2a...,9bc1...
  image-organizer analyze --project holiday --model gemini-2.5-pro`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&analyzeProjectFlag, "project", "p", "", "Project id (required)")
	analyzeCmd.Flags().StringSliceVar(&analyzeIDsFlag, "ids", nil, "Only analyze these image ids")
	analyzeCmd.Flags().StringVar(&analyzeModelFlag, "model", "", "Model to try before the configured ones")
	analyzeCmd.Flags().StringSliceVar(&analyzeModels, "models", nil, "Analyzer models in fallback order (overrides config)")
	_ = analyzeCmd.MarkFlagRequired("project")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	return runTrackedJob(cmd, appOptions{withAnalyzer: true}, func(ctx context.Context, a *app) (*models.Job, error) {
		return a.service.Analyze(ctx, pipeline.AnalyzeRequest{
			ProjectID: analyzeProjectFlag,
			ImageIDs:  analyzeIDsFlag,
			Model:     analyzeModelFlag,
		})
	})
}
