package cmd

import (
	"time"

	"finscan/internal/api"
	"finscan/internal/logger"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline over HTTP",
	Long: `Start the HTTP API.

  POST   /v1/process?name=&golden=&save_golden=   raw PDF or image body
  GET    /v1/golden                               list golden snapshots
  GET    /v1/golden/{name}                        one golden document
  DELETE /v1/golden/{name}
  GET    /healthz

Requests under /v1 are rate limited per client address.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveFlags pipelineFlags

func init() {
	rootCmd.AddCommand(serveCmd)

	addPipelineFlags(serveCmd, &serveFlags)
	serveCmd.Flags().String("addr", "", "Listen address (default FINSCAN_LISTEN_ADDR)")
	serveCmd.Flags().Int64("max-body", 100<<20, "Maximum upload size in bytes")
	serveCmd.Flags().Duration("rate-every", 6*time.Second, "Per-client token refill interval")
	serveCmd.Flags().Int("rate-burst", 5, "Per-client burst")
	serveCmd.Flags().Int("concurrent", 0, "Documents processed at once (default BATCH_WORKERS)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	addr, _ := cmd.Flags().GetString("addr")
	maxBody, _ := cmd.Flags().GetInt64("max-body")
	rateEvery, _ := cmd.Flags().GetDuration("rate-every")
	rateBurst, _ := cmd.Flags().GetInt("rate-burst")
	concurrent, _ := cmd.Flags().GetInt("concurrent")

	cfg, err := requireConfig()
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.ListenAddr
	}
	if concurrent <= 0 {
		concurrent = cfg.BatchWorkers
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	deps, err := buildPipeline(ctx, cfg, serveFlags, log)
	if err != nil {
		return err
	}
	defer deps.Close(log)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := api.New(deps.pipe, store, api.Config{
		MaxBodyBytes:  maxBody,
		RateEvery:     rateEvery,
		RateBurst:     rateBurst,
		MaxConcurrent: concurrent,
	})
	return srv.ListenAndServe(ctx, addr)
}
