// Command simnet runs discrete-event network simulations described by
// scenario files, and fits metalog distributions from quantile data.
package main

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/simnetlab/simnet/device"
	"github.com/simnetlab/simnet/metalog"
	"github.com/simnetlab/simnet/monitor"
	"github.com/simnetlab/simnet/scenario"
	"github.com/simnetlab/simnet/sim"
	"github.com/simnetlab/simnet/simnet"
	"github.com/simnetlab/simnet/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "simnet",
	Short: "Deterministic discrete-event network simulator",
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		_ = godotenv.Load()

		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

var runFlags struct {
	scenarioPath   string
	steps          int
	dbPath         string
	monitorPort    int
	telemetryDepth int
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the scenario graph and step it to completion",
	RunE:  runSimulation,
}

var fitFlags struct {
	xs     []float64
	ys     []float64
	terms  int
	bounds string
	lower  float64
	upper  float64
}

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit a metalog distribution from quantile data",
	RunE:  runFit,
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false,
		"enable debug logging")

	runCmd.Flags().StringVarP(&runFlags.scenarioPath, "scenario", "s", "",
		"path to the scenario YAML file")
	runCmd.Flags().IntVarP(&runFlags.steps, "steps", "n", 1000,
		"maximum number of simulation steps")
	runCmd.Flags().StringVar(&runFlags.dbPath, "db", "",
		"telemetry database path, without extension (empty picks a name)")
	runCmd.Flags().IntVar(&runFlags.monitorPort, "monitor-port", 0,
		"serve the status API on this port (0 disables)")
	runCmd.Flags().IntVar(&runFlags.telemetryDepth, "telemetry-depth", 256,
		"telemetry channel depth before records are dropped")
	_ = runCmd.MarkFlagRequired("scenario")

	fitCmd.Flags().Float64SliceVarP(&fitFlags.xs, "x", "x", nil,
		"observed quantile values")
	fitCmd.Flags().Float64SliceVarP(&fitFlags.ys, "y", "y", nil,
		"cumulative probabilities in (0,1), one per x")
	fitCmd.Flags().IntVarP(&fitFlags.terms, "terms", "k", 4,
		"number of metalog terms")
	fitCmd.Flags().StringVar(&fitFlags.bounds, "bounds", "unbounded",
		"support: unbounded, semi-lower, semi-upper, or bounded")
	fitCmd.Flags().Float64Var(&fitFlags.lower, "lower", 0, "lower bound")
	fitCmd.Flags().Float64Var(&fitFlags.upper, "upper", 0, "upper bound")
	_ = fitCmd.MarkFlagRequired("x")
	_ = fitCmd.MarkFlagRequired("y")

	rootCmd.AddCommand(runCmd, fitCmd)
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := scenario.Load(runFlags.scenarioPath)
	if err != nil {
		return err
	}

	store, err := telemetry.NewStore(runFlags.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	writer := telemetry.NewAsyncWriter(store, runFlags.telemetryDepth)
	defer writer.Close()

	builder, index, err := s.Materialize(ctx, writer)
	if err != nil {
		return err
	}

	graph, err := builder.Build()
	if err != nil {
		return err
	}

	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		graph.Engine().AcceptHook(sim.NewEventLogger(
			logrus.WithField("simulation", graph.ID())))
	}

	if runFlags.monitorPort > 0 {
		m := monitor.New(graph.Engine(), store).
			WithPortNumber(runFlags.monitorPort)

		if _, err := m.StartServer(); err != nil {
			return err
		}
		defer m.Stop()
	}

	logrus.WithFields(logrus.Fields{
		"scenario": s.Name,
		"devices":  len(index),
		"run":      graph.ID(),
	}).Info("simulation built")

	if err := graph.Run(runFlags.steps); err != nil {
		return fmt.Errorf("simulation failed at t=%.9f: %w",
			float64(graph.Now()), err)
	}

	writer.Close()
	if err := store.Flush(); err != nil {
		return err
	}

	count, err := store.TotalRecordCount()
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"now":     float64(graph.Now()),
		"handled": graph.Engine().Handled(),
		"records": count,
		"dropped": writer.Dropped(),
		"db":      store.Path(),
	}).Info("simulation finished")

	reportRouters(graph, s, index)

	return nil
}

func reportRouters(
	graph *simnet.Simulation,
	s *scenario.Scenario,
	index map[uint32]int,
) {
	for _, cfg := range s.Devices {
		router, ok := graph.Device(index[cfg.ID]).(*device.Router)
		if !ok {
			continue
		}

		logrus.WithFields(logrus.Fields{
			"device":   cfg.ID,
			"received": len(router.Received()),
		}).Info("router totals")
	}
}

func runFit(cmd *cobra.Command, _ []string) error {
	bounds, err := parseBounds()
	if err != nil {
		return err
	}

	dist, err := metalog.Fit(
		fitFlags.xs, fitFlags.ys, fitFlags.terms, bounds)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "coefficients: %v\n", dist.Coefficients)
	for _, y := range []float64{0.01, 0.1, 0.25, 0.5, 0.75, 0.9, 0.99} {
		fmt.Fprintf(out, "q(%.2f) = %g\n", y, dist.Quantile(y))
	}

	return nil
}

func parseBounds() (metalog.Bounds, error) {
	switch fitFlags.bounds {
	case "unbounded":
		return metalog.Unbounded(), nil
	case "semi-lower":
		return metalog.SemiBoundedLower(fitFlags.lower), nil
	case "semi-upper":
		return metalog.SemiBoundedUpper(fitFlags.upper), nil
	case "bounded":
		return metalog.Bounded(fitFlags.lower, fitFlags.upper), nil
	default:
		return metalog.Bounds{}, fmt.Errorf(
			"unknown bounds type %q", fitFlags.bounds)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
