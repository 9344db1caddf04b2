package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/MarkStokes71/stm8gal/pkg/orchestrator"
)

func newProgramCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "program",
		Short: "Sync, identify, erase, write inputs, and optionally verify and jump",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession()
		},
	}
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Sync, identify, write inputs with mass erase off, then verify them by read-back (inputs are still written)",
		RunE: func(cmd *cobra.Command, args []string) error {
			v.Set("verify", true)
			v.Set("mass-erase", false)
			return runSession()
		},
	}
}

func runSession() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tr, err := buildTransport(cfg)
	if err != nil {
		return err
	}
	oc, err := cfg.ToOrchestratorConfig(tr)
	if err != nil {
		return err
	}

	report, err := orchestrator.Run(context.Background(), oc, func(e orchestrator.Event) {
		log.Debug().Str("phase", e.Phase).Int("done", e.BytesDone).Int("total", e.BytesTotal).Msg("progress")
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("family", report.Target.Family.String()).
		Int("bytes_written", report.BytesWritten).
		Int("bytes_verified", report.BytesVerified).
		Int("bytes_read", report.BytesRead).
		Msg("session complete")
	return nil
}
