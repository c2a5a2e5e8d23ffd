package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/visanavi/vnavi/internal/api"
	"github.com/visanavi/vnavi/internal/controller"
	"github.com/visanavi/vnavi/internal/member"
	"github.com/visanavi/vnavi/internal/render"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the Q&A client over MCP (stdio transport)",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(true)
		if err != nil {
			return err
		}
		defer app.Close()

		// The MCP surface reads rendered answers back, so the controller is
		// rebuilt around a capturing sink. No interactive email prompt over
		// stdio: the transport carries the protocol.
		sink := &render.Capture{}
		gate := member.New(app.mode, app.client, app.store, nil, sink, app.cfg.Payment.Link)
		ctrl := controller.New(gate, app.client, sink, app.hist)

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Mode:        app.mode,
			Controller:  ctrl,
			Sink:        sink,
			Store:       app.store,
			History:     app.hist,
			DefaultLang: app.cfg.Ask.Lang,
		})

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		stdioSrv := server.NewStdioServer(mcpSrv)
		slog.Info("MCP server started (stdio transport)")
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
