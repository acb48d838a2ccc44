package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tourneyreel/studio/internal/logging"
	"github.com/tourneyreel/studio/internal/media"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the media tools exports depend on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			caps, err := media.NewDoctor(cfg.FFmpegPath(), cfg.FFprobePath(), logging.Discard()).Check(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderTools(caps))
			if !caps.CanExport() {
				return fmt.Errorf("ffmpeg not found at %q", cfg.FFmpegPath())
			}
			return nil
		},
	}
}

func renderTools(caps *media.Capabilities) string {
	rows := [][]string{}
	for _, tool := range []media.Tool{caps.FFmpeg, caps.FFprobe} {
		rows = append(rows, []string{tool.Name, yesNo(tool.Available), tool.Path, tool.Version})
	}
	return renderTable([]string{"Tool", "Found", "Path", "Version"}, rows, nil) + "\n"
}
