package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/winsor/internal/core"
	winsormcp "github.com/valter-silva-au/winsor/internal/mcp"
	"github.com/valter-silva-au/winsor/pkg/models"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the winsor MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the winsor MCP server on stdio",
	Long: `Start the winsor MCP server on stdio transport.

The server exposes winsorization as MCP tools: resolve_bounds,
winsorize_batch, get_metrics, get_alerts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return fmt.Errorf("observation store not initialized")
		}

		factory := func(records []*models.ObservationData, dataAsOf time.Time) (*core.Winsorizer, error) {
			return buildWinsorizer(records, "", dataAsOf)
		}
		srv := winsormcp.NewServer(Store, factory, MetricsCalc, AlertEngine, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
