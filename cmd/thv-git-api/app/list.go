package app

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	gitapi "github.com/stacklok/thv-git-api/internal/app"
	"github.com/stacklok/thv-git-api/internal/repository"
)

const (
	listFormatTable = "table"
	listFormatJSON  = "json"
)

func newListCmd(v *viper.Viper) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the served repositories",
		Long: `List the repositories the server would serve, most recently changed first,
with their last commit. Name filters of the configuration apply.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("error retrieving format flag: %w", err)
			}
			if format != listFormatTable && format != listFormatJSON {
				return fmt.Errorf("unsupported format %q (supported: %s, %s)", format, listFormatTable, listFormatJSON)
			}

			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			svc, err := gitapi.NewRepositoryService(cmd.Context(), gitapi.WithConfig(cfg))
			if err != nil {
				return err
			}
			list, err := svc.ListRepositories(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list repositories: %w", err)
			}
			return writeRepositories(cmd.OutOrStdout(), list, format)
		},
	}
	listCmd.Flags().String("format", listFormatTable, "Output format (table or json)")

	return listCmd
}

// writeRepositories prints list as a table or as indented JSON
func writeRepositories(w io.Writer, list []repository.Metadata, format string) error {
	if format == listFormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	table := tablewriter.NewWriter(w)
	table.Header("Name", "Commit", "Date", "Author", "Message", "Description")
	for _, md := range list {
		row := []string{
			md.Name,
			md.LastCommit.Hash,
			md.LastCommit.Date,
			md.LastCommit.Author,
			md.LastCommit.Message,
			md.Description,
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to add row for %s: %w", md.Name, err)
		}
	}
	return table.Render()
}
