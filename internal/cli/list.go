package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/jgarciait/osl-app-ct-sub002/internal/api"
	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Remote RemoteFlags
	Where  []string
	Order  string
}

// ListResult is the output of list and of each watch redraw.
type ListResult struct {
	Table   string          `json:"table"`
	Title   string          `json:"title"`
	Columns []string        `json:"columns"`
	Records []record.Record `json:"records"`
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// RenderText prints the records as a table under the schema title.
func (r ListResult) RenderText(w io.Writer) error {
	headers := append([]string{"id"}, r.Columns...)
	rows := make([][]string, len(r.Records))
	for i, rec := range r.Records {
		row := make([]string, 0, len(headers))
		row = append(row, strconv.FormatInt(rec.ID, 10))
		for _, col := range r.Columns {
			row = append(row, rec.String(col))
		}
		rows[i] = row
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	_, err := fmt.Fprintf(w, "%s (%d)\n%s\n", r.Title, len(r.Records), t.Render())
	return err
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <table>",
		Short: "Print the rows of a table",
		Long: `Print the rows of a table in its collation order.

Reads the local database, or a running server when --server or
client.server_url is set.

Examples:
  legisync list comisiones
  legisync list comisiones --where tipo=Senado --order -nombre
  legisync list expresiones --server http://localhost:8080 --token $TOKEN --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), opts, args[0], cmd)
		},
	}

	opts.Remote.register(cmd)
	cmd.Flags().StringArrayVarP(&opts.Where, "where", "w", nil, "equality filter field=value (repeatable)")
	cmd.Flags().StringVar(&opts.Order, "order", "", "sort keys, e.g. tipo,-nombre (default: table order)")

	return cmd
}

func runList(ctx context.Context, opts *ListOptions, table string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	filter, err := parseFilter(opts.Where)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalid, "invalid filter", err)
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load configuration", err)
	}
	opts.Remote.apply(cfg)

	b, err := openBackend(ctx, cfg, newLogger(opts.RootOptions, cmd.ErrOrStderr()))
	if err != nil {
		return formatter.Fail(GetExitCode(err), ErrCodeStore, "failed to open data source", err)
	}
	defer b.close()

	sch, ok := b.lookup(table)
	if !ok {
		return formatter.Fail(ExitCommandError, ErrCodeUnknown,
			fmt.Sprintf("unknown or not viewable table %q", table), nil)
	}

	recs, err := b.reader.Select(ctx, sch.Name, filter, api.DecodeOrder(opts.Order))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to read %s", sch.Name), err)
	}
	formatter.VerboseLog("read %d row(s) from %s", len(recs), sch.Name)

	return formatter.Success(ListResult{
		Table:   sch.Name,
		Title:   sch.Title,
		Columns: sch.Columns,
		Records: recs,
	})
}
