package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ereinha3/eznas/pkg/apply"
	"github.com/ereinha3/eznas/pkg/clients"
	"github.com/ereinha3/eznas/pkg/compose"
	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/render"
	"github.com/ereinha3/eznas/pkg/scheduler"
	"github.com/ereinha3/eznas/pkg/store"
	"github.com/ereinha3/eznas/pkg/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Converge the stack onto the configuration",
	Long: `Apply a stack document and converge the cluster onto it.

Examples:
  # Apply a new configuration
  eznas apply -f stack.yaml

  # Re-converge onto the saved configuration
  eznas apply

Exit codes: 0 on success, 1 on a failed run, 2 on an invalid
configuration.`,
	RunE: runApply,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every service against the saved configuration",
	Long: `Walk the managed services and report whether each one matches
the saved configuration. Nothing is mutated.`,
	RunE: runVerify,
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop the deployed stack",
	RunE:  runDown,
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the compose bundle without deploying",
	RunE:  runRender,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "stack YAML to apply (default: the saved configuration)")
	renderCmd.Flags().StringP("file", "f", "", "stack YAML to render (default: the saved configuration)")

	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(renderCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	st := openStore(false)
	cfg, err := desiredConfig(cmd, st)
	if err != nil {
		return &exitError{code: 2, message: err.Error()}
	}

	runner := newApplyRunner(st, cfg)
	runID := uuid.NewString()
	fmt.Printf("Run %s\n", runID)

	ok, runEvents := runner.Run(cmd.Context(), runID, cfg)
	printEvents(runEvents)

	record, recErr := st.GetRun(runID)
	if recErr == nil && record.Summary != "" {
		fmt.Println()
		fmt.Println(record.Summary)
	}
	if !ok {
		return &exitError{code: 1}
	}
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	st := openStore(true)
	cfg, err := st.LoadStack()
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return &exitError{code: 2, message: "no saved configuration; run apply first"}
		}
		return &exitError{code: 2, message: err.Error()}
	}

	sched := newScheduler(st, cfg)
	verifyEvents := sched.Verify(cmd.Context(), cfg)
	printEvents(verifyEvents)

	for _, event := range verifyEvents {
		if event.Status == types.StageFailed {
			return &exitError{code: 1}
		}
	}
	return nil
}

func runDown(cmd *cobra.Command, args []string) error {
	st := openStore(true)
	composePath := filepath.Join(st.GeneratedDir(), "docker-compose.yml")
	if _, err := os.Stat(composePath); err != nil {
		return &exitError{code: 1, message: "no generated compose bundle; nothing to stop"}
	}

	ok, detail := compose.New(composePath, nil).Down(cmd.Context())
	if detail != "" {
		fmt.Println(detail)
	}
	if !ok {
		return &exitError{code: 1}
	}
	fmt.Println("stack stopped")
	return nil
}

func runRender(cmd *cobra.Command, args []string) error {
	st := openStore(false)
	cfg, err := desiredConfig(cmd, st)
	if err != nil {
		return &exitError{code: 2, message: err.Error()}
	}
	secrets, err := st.LoadSecrets()
	if err != nil {
		return err
	}

	result, err := render.New("").Render(cfg, secrets, st.GeneratedDir())
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", result.ComposePath)
	fmt.Printf("wrote %s\n", result.EnvPath)
	for name := range result.SecretFiles {
		fmt.Printf("wrote %s\n", filepath.Join(result.SecretsDir, name))
	}
	return nil
}

// desiredConfig resolves the stack document to act on: the -f file when
// given, otherwise the saved configuration, otherwise the defaults.
func desiredConfig(cmd *cobra.Command, st *store.Store) (*types.StackConfig, error) {
	file, _ := cmd.Flags().GetString("file")
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		return config.Parse(data)
	}
	cfg, err := st.LoadStack()
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func newScheduler(st *store.Store, cfg *types.StackConfig) *scheduler.Configurator {
	deps := clients.Deps{
		Store: st,
		Paths: config.NewTranslator(cfg.Paths),
	}
	return scheduler.New(clients.All(deps))
}

func newApplyRunner(st *store.Store, cfg *types.StackConfig) *apply.Runner {
	return apply.New(st, render.New(""), newScheduler(st, cfg), nil, nil)
}

func printEvents(list []types.StageEvent) {
	for _, event := range list {
		if event.Status == types.StageStarted {
			continue
		}
		marker := "✓"
		switch event.Status {
		case types.StageFailed:
			marker = "✗"
		case types.StageWarning:
			marker = "!"
		}
		if event.Detail != "" {
			fmt.Printf("  %s %-24s %s\n", marker, event.Stage, event.Detail)
		} else {
			fmt.Printf("  %s %s\n", marker, event.Stage)
		}
	}
}
