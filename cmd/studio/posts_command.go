package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tourneyreel/studio/internal/db"
	"github.com/tourneyreel/studio/internal/posts"
)

func newPostsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "Inspect scheduled social posts",
	}
	cmd.AddCommand(newPostsListCommand(ctx))
	return cmd
}

func newPostsListCommand(ctx *commandContext) *cobra.Command {
	var userID string
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's scheduled posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			return ctx.withDB(func(database *db.DB) error {
				list, err := posts.NewRepository(database.Conn()).List(cmd.Context(), userID, posts.Filter{Status: status})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No posts")
					return nil
				}
				fmt.Fprintln(out, renderPosts(list))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id")
	cmd.Flags().StringVar(&status, "status", "", "Only posts with this status")
	return cmd
}

func renderPosts(list []*posts.Post) string {
	rows := make([][]string, 0, len(list))
	for _, p := range list {
		rows = append(rows, []string{
			p.ID,
			p.Platform,
			p.ContentType,
			p.Status,
			p.ScheduledAt.Format("2006-01-02 15:04 MST"),
			humanize.Time(p.ScheduledAt),
		})
	}
	return renderTable(
		[]string{"ID", "Platform", "Content", "Status", "Scheduled", ""},
		rows,
		nil,
	)
}
