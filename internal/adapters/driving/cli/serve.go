package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ruleforge/internal/adapters/driving/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so AI assistants can query the
reference corpus and manage configuration versions.

By default the server communicates over stdio using JSON-RPC. Use --port to
serve over HTTP instead, for example to test with MCP Inspector.

Examples:
  # Stdio mode (default)
  ruleforge serve

  # HTTP mode
  ruleforge serve --port 8080

Assistant configuration:
  {
    "mcpServers": {
      "ruleforge": {
        "command": "/path/to/ruleforge",
        "args": ["serve"]
      }
    }
  }`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	server, err := mcp.NewServer(&mcp.Ports{
		Similarity: similarityService,
		Config:     configService,
		Pipeline:   pipelineService,
	})
	if err != nil {
		return err
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}
