package cmd

import (
	"context"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voicelocal/voicelocal/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for AI assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an assistant browse, report and vote on issues as the logged-in
user (or --as). Configure it in your MCP client with:

  {
    "mcpServers": {
      "voicelocal": { "command": "voicelocal", "args": ["mcp"] }
    }
  }

Available tools: voicelocal_list_issues, voicelocal_get_issue,
voicelocal_create_issue, voicelocal_vote, voicelocal_add_comment,
voicelocal_update_status`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	// Without an identity the read tools still work.
	actor := optionalActor()

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	srv := mcp.NewServer(s, actor, viper.GetInt("feed.page_size"))
	return srv.ServeStdio(ctx)
}
