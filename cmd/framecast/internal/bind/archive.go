package bind

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/framecast/framecast/pkg/export"
	"github.com/framecast/framecast/pkg/storage"
)

// BindArchiveListOptions extracts and validates archive list flags.
func BindArchiveListOptions(cmd *cobra.Command) (storage.ListOptions, error) {
	user, _ := cmd.Flags().GetString("user")
	project, _ := cmd.Flags().GetString("project")
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	cursor, _ := cmd.Flags().GetString("cursor")

	opts := storage.ListOptions{
		UserID:    user,
		ProjectID: project,
		Limit:     limit,
		Cursor:    cursor,
	}
	if status != "" {
		opts.Status = export.Status(strings.ToUpper(status))
		if !opts.Status.Valid() {
			return storage.ListOptions{}, storage.NewInvalidInputError("status", "unknown status "+status)
		}
	}
	if limit < 0 {
		return storage.ListOptions{}, storage.NewInvalidInputError("limit", "must not be negative")
	}
	return opts, nil
}
