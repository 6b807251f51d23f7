package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternarybob/ecrop/internal/app"
	"github.com/ternarybob/ecrop/internal/models"
	"github.com/ternarybob/ecrop/internal/services/ecrop"
)

var (
	runDataset    string
	runUsername   string
	runPassword   string
	runVillage    string
	runLicenseKey string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one owner update from the terminal",
	Long: `Loads the dataset, checks the license and drives the portal without the web UI.
The password may also be supplied through ECROP_PASSWORD.`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().StringVarP(&runDataset, "dataset", "d", "", "Spreadsheet with KNO and Mobile columns (.xlsx or .csv)")
	runCmd.Flags().StringVarP(&runUsername, "username", "u", "", "Portal username")
	runCmd.Flags().StringVar(&runPassword, "password", "", "Portal password (default: $ECROP_PASSWORD)")
	runCmd.Flags().StringVar(&runVillage, "village", "", "Village code")
	runCmd.Flags().StringVar(&runLicenseKey, "license-key", "", "License key for the village")
	runCmd.MarkFlagRequired("dataset")
	runCmd.MarkFlagRequired("username")
	runCmd.MarkFlagRequired("village")
}

func runOnce(cmd *cobra.Command, args []string) error {
	if runPassword == "" {
		runPassword = os.Getenv("ECROP_PASSWORD")
	}
	if runPassword == "" {
		return errors.New("password is required (--password or ECROP_PASSWORD)")
	}

	printer := newLogPrinter(cmd.OutOrStdout())
	application, err := app.New(config, logger, ecrop.WithLogListener(printer.Print))
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.LicenseChecker.Check(ctx, runVillage, runLicenseKey); err != nil {
		return err
	}

	dataset, err := application.DatasetLoader.Load(runDataset)
	if err != nil {
		return err
	}

	report, err := application.Runner.Run(ctx, ecrop.RunRequest{
		Credentials: ecrop.Credentials{
			Username:    runUsername,
			Password:    runPassword,
			VillageCode: runVillage,
		},
		Dataset:     dataset,
		DatasetFile: runDataset,
	})
	if err != nil {
		return err
	}

	printer.Summary(report)
	if report.Status != models.RunStatusCompleted {
		return fmt.Errorf("run %s %s", report.ID, report.Status)
	}
	return nil
}
