package main

import (
	"github.com/spf13/cobra"

	"hypcert/internal/api"
	"hypcert/internal/logging"
	"hypcert/internal/store"
)

func (a *app) serveCmd() *cobra.Command {
	var (
		addr    string
		noStore bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the certification API over HTTP",
		Long: `Endpoints:
  POST /v1/certify        {"relator": "abAB", "external": true}
  GET  /v1/results        ?outcome=&batch=&limit=
  GET  /v1/results/stats
  GET  /healthz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			var results *store.ResultStore
			if !noStore {
				var err error
				results, err = store.Open(a.cfg.Store.DatabasePath)
				if err != nil {
					return err
				}
				defer results.Close()
			}

			cs, err := a.criteria()
			if err != nil {
				return err
			}
			logging.Boot("serving %d criteria on %s", len(cs), addr)
			srv := api.NewServer(cs, a.cfg.PipelineOptions(), results, a.cfg.GetRequestTimeout())
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not cache results")
	return cmd
}
