package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/grantfit/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the scan and analysis API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default is server.addr from the config)")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := newPipeline(ctx)
	defer p.Close()

	srv := server.New(server.Deps{
		Store:     p.store,
		Validator: p.aggregator,
		Runner:    p.runner,
		Registry:  p.registry,
		Opendata:  p.opendata,
		Logger:    p.logger,
	})

	if err := srv.Run(ctx); err != nil {
		p.logger.Fatal("server stopped", zap.Error(err))
	}
}
