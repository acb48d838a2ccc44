package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tourneyreel/studio/internal/db"
	"github.com/tourneyreel/studio/internal/drafts"
	"github.com/tourneyreel/studio/internal/editor"
	"github.com/tourneyreel/studio/internal/timeline"
)

func newDraftCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Inspect saved editing drafts",
	}
	cmd.AddCommand(newDraftListCommand(ctx), newDraftShowCommand(ctx), newDraftDiscardCommand(ctx))
	return cmd
}

func newDraftListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List campaigns with a saved draft",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(database *db.DB) error {
				list, err := drafts.NewStore(database.Conn()).List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No drafts saved")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, d := range list {
					rows = append(rows, []string{d.CampaignID, humanize.Time(d.SavedAt), humanize.Bytes(uint64(d.Bytes))})
				}
				fmt.Fprintln(out, renderTable([]string{"Campaign", "Saved", "Size"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newDraftShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <campaign-id>",
		Short: "Print a draft's timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(database *db.DB) error {
				snap, err := drafts.NewStore(database.Conn()).Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if snap == nil {
					return fmt.Errorf("campaign %s has no saved draft", args[0])
				}
				fmt.Fprint(cmd.OutOrStdout(), renderDraft(*snap))
				return nil
			})
		},
	}
}

func newDraftDiscardCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <campaign-id>",
		Short: "Delete a saved draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(database *db.DB) error {
				if err := drafts.NewStore(database.Conn()).Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Draft for %s discarded\n", args[0])
				return nil
			})
		},
	}
}

func renderDraft(snap editor.Snapshot) string {
	st := editor.FromSnapshot(snap)

	out := fmt.Sprintf("Saved %s, total %s, playhead at %s\n\n",
		humanize.Time(snap.SavedAt), formatSeconds(st.TotalDuration), formatSeconds(st.CurrentTime))

	if len(st.Clips) > 0 {
		rows := make([][]string, 0, len(st.Clips))
		for i, c := range st.Clips {
			tr := "-"
			if c.TransitionOut.Active() {
				tr = fmt.Sprintf("%s %.1fs", c.TransitionOut.Type, c.TransitionOut.Duration)
			}
			rows = append(rows, []string{
				strconv.Itoa(i + 1),
				formatSeconds(timeline.TimelineOffset(st.Clips, i)),
				formatSeconds(c.TrimStart),
				formatSeconds(c.TrimEnd),
				yesNo(c.Muted),
				tr,
				c.SourceURL,
			})
		}
		out += renderTable(
			[]string{"#", "Starts", "In", "Out", "Muted", "Transition", "Source"},
			rows,
			[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft, alignLeft, alignLeft},
		) + "\n"
	}

	if len(st.AudioTracks) > 0 {
		rows := make([][]string, 0, len(st.AudioTracks))
		for _, a := range st.AudioTracks {
			rows = append(rows, []string{
				formatSeconds(a.OffsetSeconds),
				formatSeconds(a.TrimStart),
				formatSeconds(a.TrimEnd),
				strconv.FormatFloat(a.Volume, 'f', 2, 64),
				a.SourceURL,
			})
		}
		out += renderTable(
			[]string{"Offset", "In", "Out", "Volume", "Source"},
			rows,
			[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft},
		) + "\n"
	}
	return out
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
