package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/moisslang/moiss/pkg/moiss"
	"github.com/moisslang/moiss/pkg/moiss/dashboard"
)

var (
	patientFile   string
	dashboardOn   bool
	dashboardPort int
	loopLimit     int
	timeout       time.Duration
	quiet         bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "moiss",
		Short: "Run and check MOISS clinical protocol files",
		Long: `moiss executes clinical protocol programs: unit-aware vitals
arithmetic, KAE trend tracking, and intervention-timing classification,
emitting an ordered event stream for every run.`,
		SilenceUsage: true,
	}

	runCmd := &cobra.Command{
		Use:   "run <protocol.moiss>",
		Short: "Execute a protocol file against a patient binding",
		Args:  cobra.ExactArgs(1),
		RunE:  runProtocol,
	}
	runCmd.Flags().StringVarP(&patientFile, "patient", "p", "", "YAML file with patient vitals (default: built-in demo patient)")
	runCmd.Flags().BoolVar(&dashboardOn, "dashboard", false, "serve the live event dashboard while running")
	runCmd.Flags().IntVar(&dashboardPort, "dashboard-port", 9090, "dashboard listen port")
	runCmd.Flags().IntVar(&loopLimit, "limit", 1000, "loop iteration ceiling per loop entry")
	runCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "wall-clock execution limit")
	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress per-event console output")

	checkCmd := &cobra.Command{
		Use:   "check <protocol.moiss>",
		Short: "Parse a protocol file and report errors without executing",
		Args:  cobra.ExactArgs(1),
		RunE:  checkProtocol,
	}

	rootCmd.AddCommand(runCmd, checkCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runProtocol(cmd *cobra.Command, args []string) error {
	source, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	patient := moiss.DefaultPatient()
	if patientFile != "" {
		data, err := os.ReadFile(patientFile)
		if err != nil {
			return err
		}
		patient = &moiss.Patient{}
		if err := yaml.Unmarshal(data, patient); err != nil {
			return fmt.Errorf("parsing %s: %w", patientFile, err)
		}
	}

	engine := moiss.NewEngine()
	engine.SetLimits(moiss.Limits{
		MaxLoopIterations: loopLimit,
		MaxExecutionTime:  timeout,
	})
	if !quiet {
		engine.Events().SubscribeAll(&moiss.ConsoleHandler{})
	}

	if dashboardOn {
		server := dashboard.NewServer(dashboardPort)
		engine.Events().SubscribeAll(server)
		go func() {
			if err := server.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "dashboard: %v\n", err)
			}
		}()
		defer server.Stop()
	}

	prog, err := engine.Compile(string(source))
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	result, err := engine.Execute(context.Background(), prog, patient, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run %s failed after %d events: %v\n", result.RunID, len(result.Events), err)
		os.Exit(1)
	}
	fmt.Printf("run %s completed: %d events\n", result.RunID, len(result.Events))

	if dashboardOn {
		fmt.Printf("dashboard on http://localhost:%d (ctrl-c to exit)\n", dashboardPort)
		select {}
	}
	return nil
}

func checkProtocol(cmd *cobra.Command, args []string) error {
	source, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	engine := moiss.NewEngine()
	if _, err := engine.Compile(string(source)); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	fmt.Printf("%s: ok\n", args[0])
	return nil
}
