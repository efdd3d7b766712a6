package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/framecast/framecast/cmd/framecast/internal/bind"
	"github.com/framecast/framecast/cmd/framecast/internal/format"
	"github.com/framecast/framecast/pkg/export"
	"github.com/framecast/framecast/pkg/server"
	"github.com/framecast/framecast/pkg/storage"
)

var errArchiveDisabled = errors.New("job archive is disabled (storage.backend is none)")

func newArchiveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "archive",
		Short:   "Inspect archived export jobs",
		Long:    `Read job snapshots written by the archive while exports ran, including jobs from earlier server runs.`,
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List archived jobs, newest first",
		Args:  cobra.NoArgs,
		RunE:  runArchiveList,
	}
	list.Flags().String("user", "", "Only jobs of this user")
	list.Flags().String("project", "", "Only jobs of this project")
	list.Flags().String("status", "", "Only jobs in this status")
	list.Flags().Int("limit", storage.DefaultListLimit, "Page size")
	list.Flags().String("cursor", "", "Cursor of the page to read")

	get := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one archived job",
		Args:  cobra.ExactArgs(1),
		RunE:  runArchiveGet,
	}

	cmd.AddCommand(list, get)
	return cmd
}

func archiveErrorCode(err error) string {
	switch {
	case errors.Is(err, errArchiveDisabled):
		return "ARCHIVE_DISABLED"
	case errors.Is(err, storage.ErrNotFound):
		return "ARCHIVE_NOT_FOUND"
	case errors.Is(err, storage.ErrInvalidInput):
		return "ARCHIVE_INVALID_INPUT"
	default:
		return server.ErrorCode(err)
	}
}

func runArchiveList(cmd *cobra.Command, _ []string) error {
	formatter := format.FromCommand(cmd)

	opts, err := bind.BindArchiveListOptions(cmd)
	if err != nil {
		return fail(formatter, "list archive", err, archiveErrorCode(err))
	}

	d, stop, err := buildRuntime(cmd, "archive")
	if err != nil {
		return fail(formatter, "list archive", err, server.ErrorCode(err))
	}
	defer stop()
	if d.Archive == nil {
		return fail(formatter, "list archive", errArchiveDisabled, archiveErrorCode(errArchiveDisabled))
	}

	page, err := d.Archive.List(cmd.Context(), opts)
	if err != nil {
		return fail(formatter, "list archive", err, archiveErrorCode(err))
	}

	if formatter.IsJSON() {
		return formatter.PrintJSON(page)
	}

	rows := make([][]string, 0, len(page.Jobs))
	for _, j := range page.Jobs {
		rows = append(rows, []string{
			j.ID,
			string(j.Status),
			fmt.Sprintf("%.0f%%", j.Progress),
			j.UserID,
			j.ProjectID,
			j.CreatedAt.Format(time.RFC3339),
		})
	}
	if err := formatter.PrintTable([]string{"id", "status", "progress", "user", "project", "created"}, rows); err != nil {
		return err
	}
	if page.NextCursor != "" {
		return formatter.PrintSummary("More jobs: framecast archive list --cursor " + page.NextCursor)
	}
	return nil
}

func runArchiveGet(cmd *cobra.Command, args []string) error {
	formatter := format.FromCommand(cmd)

	d, stop, err := buildRuntime(cmd, "archive")
	if err != nil {
		return fail(formatter, "read archived job", err, server.ErrorCode(err))
	}
	defer stop()
	if d.Archive == nil {
		return fail(formatter, "read archived job", errArchiveDisabled, archiveErrorCode(errArchiveDisabled))
	}

	job, err := d.Archive.Get(cmd.Context(), args[0])
	if err != nil {
		return fail(formatter, "read archived job", err, archiveErrorCode(err))
	}
	return formatter.PrintPanel("Job "+job.ID, jobFields(job), job)
}

func jobFields(j export.Job) [][2]string {
	fields := [][2]string{
		{"Status", string(j.Status)},
		{"Progress", fmt.Sprintf("%.0f%%", j.Progress)},
		{"User", j.UserID},
		{"Project", j.ProjectID},
		{"Timeline", j.TimelineID},
		{"Settings", settingsLine(j.Settings)},
		{"Attempt", strconv.Itoa(j.Attempt)},
		{"Created", j.CreatedAt.Format(time.RFC3339)},
	}
	if j.CurrentPhase != "" {
		fields = append(fields, [2]string{"Phase", string(j.CurrentPhase)})
	}
	if at := j.FinishedAt(); at != nil {
		fields = append(fields, [2]string{"Finished", at.Format(time.RFC3339)})
	}
	if j.OutputPath != "" {
		fields = append(fields, [2]string{"Output", j.OutputPath})
	}
	if j.Error != "" {
		fields = append(fields, [2]string{"Error", j.Error})
	}
	if j.RetryOf != "" {
		fields = append(fields, [2]string{"Retry of", j.RetryOf})
	}
	return fields
}
