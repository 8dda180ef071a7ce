package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/commentlink/api"
	"github.com/hazyhaar/commentlink/mcptools"
)

var version = "dev"

func (a *app) openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <url>",
		Short: "Open a page in the browser, decorate it and follow shared links until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.newStack(ctx, true)
			if err != nil {
				return err
			}
			defer st.close()

			s, err := st.sessions.Open(ctx, args[0])
			if err != nil {
				return err
			}
			a.logger.Info("commentlink: session open", "session", s.ID(), "platform", s.Profile().Name)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.syncOptions(ctx, st) })
			g.Go(func() error {
				<-ctx.Done()
				return nil
			})
			return g.Wait()
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	var noBrowser bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API with browser sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := a.newStack(ctx, !noBrowser)
			if err != nil {
				return err
			}
			defer st.close()

			var save api.SaveFunc
			if st.db != nil {
				save = st.save
			}
			srv := &http.Server{
				Addr:              a.cfg.API.Addr,
				Handler:           api.New(st.sessions, st.store, save, st.metrics, a.cfg.API, a.logger).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.syncOptions(ctx, st) })
			g.Go(func() error {
				a.logger.Info("commentlink: listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			err = g.Wait()
			a.logger.Info("commentlink: server stopped")
			return err
		},
	}
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "serve link and option routes only")
	return cmd
}

func (a *app) mcpCmd() *cobra.Command {
	var withBrowser bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := a.newStack(ctx, withBrowser)
			if err != nil {
				return err
			}
			defer st.close()

			srv := mcp.NewServer(&mcp.Implementation{Name: "commentlink", Version: version}, nil)
			mcptools.New(st.sessions, a.logger).RegisterMCP(srv)

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.syncOptions(ctx, st) })
			g.Go(func() error {
				// The client closing stdin ends the session.
				defer cancel()
				return srv.Run(ctx, &mcp.StdioTransport{})
			})
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&withBrowser, "browser", false, "start Chrome and expose session tools")
	return cmd
}
