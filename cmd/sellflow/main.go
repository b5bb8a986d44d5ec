// Command sellflow runs the coordinate-driven marketplace selling workflow:
// research sold items, source them, list them, and reprice slow sellers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sellflow/internal/calibrate"
	"sellflow/internal/config"
	"sellflow/internal/coords"
	"sellflow/internal/flow"
	"sellflow/internal/input"
	"sellflow/internal/logging"
	"sellflow/internal/pricing"
)

var (
	configPath string
	verbose    bool

	cfg    config.Settings
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sellflow",
	Short: "Coordinate-driven marketplace selling automation",
	Long: `sellflow drives a marketplace UI by simulated mouse and keyboard input
at calibrated screen coordinates, verifying every step on screen before
moving to the next. Stages: research, sourcing, listing, price adjustment.

Run without arguments for the interactive menu.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = logging.New(logging.Options{
			Dir:     cfg.Dirs.Logs,
			Verbose: verbose,
			Console: true,
		})
		if err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMenu(cmd.Context())
	},
}

var researchCmd = &cobra.Command{
	Use:   "research [keyword...]",
	Short: "Run the research stage for one or more search keywords",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(&cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := a.researchRunner().Keywords(cmd.Context(), args)
		if err != nil {
			return err
		}
		fmt.Printf("research complete: %d items recorded\n", len(items))
		return nil
	},
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run the external calibration tool and install the coordinate set",
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, _ := cmd.Flags().GetString("tool")
		store := coords.NewStore(cfg.Dirs.CoordinateSets)
		runner := calibrate.NewRunner(tool, store, logger)

		platform := input.PlatformFor(cfg.Engine.Platform)
		set, err := runner.Run(cmd.Context(), platform.Name, cfg.Engine.CoordinateProfile)
		if err != nil {
			return err
		}
		fmt.Printf("calibration complete: %d elements in %s/%s\n",
			set.Len(), platform.Name, cfg.Engine.CoordinateProfile)
		return nil
	},
}

var priceAdjustCmd = &cobra.Command{
	Use:   "price-adjust",
	Short: "Run the daily price pass over active listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		daemon, _ := cmd.Flags().GetBool("daemon")

		a, err := newApp(&cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		pass := func() error {
			adjusted, err := a.priceAdjustRunner().Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("price pass complete: %d listings adjusted\n", adjusted)
			return nil
		}

		if !daemon {
			return pass()
		}

		sched, err := pricing.NewScheduler(cfg.Pricing.DailySchedule, func() {
			if err := pass(); err != nil {
				logger.Error("scheduled price pass failed", zap.Error(err))
			}
		}, logger)
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()

		<-cmd.Context().Done()
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run [keyword...]",
	Short: "Run the full cycle: research, sourcing, and listing of accepted items",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		photoDir, _ := cmd.Flags().GetString("photo-dir")

		a, err := newApp(&cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := a.researchRunner().Keywords(cmd.Context(), args)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("research found no items; nothing to source")
			return nil
		}

		inputs := make([]flow.SourcingInput, len(items))
		for i, item := range items {
			inputs[i] = flow.SourcingInput{
				Item:      item,
				PhotoPath: filepath.Join(photoDir, fmt.Sprintf("item_%d.png", i+1)),
			}
		}
		decisions, err := a.sourcingRunner().RunAll(cmd.Context(), inputs)
		if err != nil {
			return err
		}

		listed := 0
		lr := a.listingRunner()
		for i, d := range decisions {
			if !d.Accepted {
				continue
			}
			_, err := lr.Run(cmd.Context(), flow.DetailsFor(d, []string{inputs[i].PhotoPath}))
			if err != nil {
				return err
			}
			listed++
		}
		fmt.Printf("cycle complete: %d researched, %d accepted, %d listed\n",
			len(items), listed, listed)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list [title]",
	Short: "Publish a single listing from the command line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		price, _ := cmd.Flags().GetInt("price")
		images, _ := cmd.Flags().GetStringSlice("image")
		description, _ := cmd.Flags().GetString("description")

		a, err := newApp(&cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		_, err = a.listingRunner().Run(cmd.Context(), flow.ListingDetails{
			Title:       args[0],
			Description: description,
			Price:       price,
			ImagePaths:  images,
		})
		return err
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/settings.yaml", "settings file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	setupCmd.Flags().String("tool", "sellflow-calibrate", "calibration tool executable")
	priceAdjustCmd.Flags().Bool("daemon", false, "stay resident and run on the daily schedule")
	runCmd.Flags().String("photo-dir", "data/photos", "directory holding item photos for image search")
	listCmd.Flags().Int("price", 0, "listing price")
	listCmd.Flags().StringSlice("image", nil, "listing image path (repeatable)")
	listCmd.Flags().String("description", "", "listing description")

	rootCmd.AddCommand(researchCmd, setupCmd, priceAdjustCmd, runCmd, listCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "See logs/error.log and the screenshot directory for failure artifacts.")
		os.Exit(1)
	}
}
