package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"auto_blog_package_publisher/publisher"
	"auto_blog_package_publisher/server"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI and JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.log.Sync()
			if a.cfg.Log.Mode == "prod" {
				gin.SetMode(gin.ReleaseMode)
			}

			pipe, err := a.pipeline(ctx)
			if err != nil {
				return err
			}
			opts := server.Options{
				Generator:   pipe,
				Store:       a.store,
				GraphicsDir: a.cfg.Site.GraphicsDir,
				Log:         a.log,
			}
			if a.cfg.WordPressConfigured() {
				pub, err := publisher.New(a.cfg.WordPress, nil, a.log)
				if err != nil {
					return err
				}
				opts.Publisher = pub
			} else {
				a.log.Warn("wordpress not configured, publishing disabled")
			}
			srv, err := server.New(opts)
			if err != nil {
				return err
			}
			listen := a.cfg.Server.Addr
			if addr != "" {
				listen = addr
			}
			if err := srv.ListenAndServe(ctx, listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "http listen address (overrides server.addr)")
	return cmd
}
