// Package main provides the juliagate CLI for managing Julia environments
// and running Julia code from Go.
package main

import (
	"fmt"
	"os"

	"github.com/advancedblockchain/juliagate"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *juliagate.BridgeConfig
)

// Version information (set at build time).
var Version = "0.1.0"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "juliagate",
		Short: "Juliagate - run Julia from Go",
		Long: `Juliagate manages Julia environments and runs Julia code from Go.

It can install Julia via juliaup, create per-project environments with
their own package depots, and launch Julia processes that communicate
with Go over pipes.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			var err error
			cfg, err = juliagate.LoadConfig(cfgFile)
			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./juliagate.yaml)")

	rootCmd.AddCommand(newDoctorCmd())
	rootCmd.AddCommand(newExecCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newFreezeCmd())
	rootCmd.AddCommand(newDemoCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// progress prints installation progress lines to stderr.
func progress(message string, current, total int64) {
	if total > 0 {
		fmt.Fprintf(os.Stderr, "%s (%d/%d)\n", message, current, total)
	} else {
		fmt.Fprintln(os.Stderr, message)
	}
}

func newEnvironment() (*juliagate.JuliaEnvironment, error) {
	return cfg.NewEnvironment(progress)
}

// newDoctorCmd creates the doctor command, which reports on the configured
// Julia installation.
func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the Julia installation and environment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newEnvironment()
			if err != nil {
				return fmt.Errorf("environment check failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Environment: %s\n", env.Name())
			fmt.Fprintf(out, "Julia:       %s (%s)\n", env.JuliaVersion.String(), env.JuliaPath)
			if env.JuliaupVersion.Major > 0 {
				fmt.Fprintf(out, "Juliaup:     %s (%s)\n", env.JuliaupVersion.String(), env.JuliaupPath)
			}
			fmt.Fprintf(out, "Project:     %s\n", env.ProjectPath)
			fmt.Fprintf(out, "Depot:       %s\n", env.DepotPath)
			return nil
		},
	}
}

// newExecCmd creates the exec command, which evaluates a Julia expression.
func newExecCmd() *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Evaluate a Julia expression and print its output",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if code == "" {
				return fmt.Errorf("no code given, use -e")
			}

			env, err := newEnvironment()
			if err != nil {
				return err
			}

			proc, err := env.NewJuliaExecProcess(nil, nil)
			if err != nil {
				return err
			}
			defer proc.Close()

			output, err := proc.Exec(code)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&code, "expr", "e", "", "Julia code to evaluate")
	return cmd
}

// newRunCmd creates the run command, which runs a Julia script file.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <script.jl> [args...]",
		Short: "Run a Julia script in the configured environment",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			env, err := newEnvironment()
			if err != nil {
				return err
			}
			return env.BoundRunJuliaScriptFromFile(args[0], args[1:]...)
		},
	}
}

// newFreezeCmd creates the freeze command, which snapshots the environment
// to a JSON file that can later recreate it.
func newFreezeCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "freeze",
		Short: "Snapshot the environment's packages to a JSON file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newEnvironment()
			if err != nil {
				return err
			}
			if err := env.FreezeToFile(outputPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Environment written to %s\n", outputPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "juliagate-env.json", "Output file")
	return cmd
}

// newDemoCmd creates the demo command, which exercises the queue bridge
// with the bundled example functions.
func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run the bundled example functions over the queue bridge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newEnvironment()
			if err != nil {
				return err
			}

			funcs, err := env.NewFuncs(nil, nil)
			if err != nil {
				return err
			}
			defer funcs.Close()
			funcs.CallTimeout = cfg.CallTimeout

			out := cmd.OutOrStdout()

			greeting, err := funcs.Hello()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "hello() = %q\n", greeting)

			for _, n := range []float64{2.5, 0, -3} {
				doubled, err := funcs.Double(n)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "float_double(%g) = %g\n", n, doubled)
			}
			return nil
		},
	}
}
