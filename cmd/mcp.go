package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/agenda/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for operator tooling",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

It lets an MCP client inspect conversations, hand them to a human, and
read the office calendar. Register it with:

  {
    "mcpServers": {
      "agenda": { "command": "agenda", "args": ["mcp"] }
    }
  }

Available tools: agenda_list_sessions, agenda_get_session,
agenda_pause_session, agenda_resume_session, agenda_availability,
agenda_list_events`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.coord.Stop()

		return mcp.NewServer(a.store, a.coord, a.finder).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
