package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/golang/glog"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/robotalks/coap.go/pkg/cli/cmds"
	"github.com/robotalks/coap.go/pkg/coap/comm"
	"github.com/robotalks/coap.go/pkg/env"
	fx "github.com/robotalks/coap.go/pkg/framework"
)

//go-build: CGO_ENABLED=0

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	glog.Infof("metrics on %s/metrics", addr)
	return fx.RunWithContextCloser(ctx, srv, func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
}

func main() {
	// env vars in .env must be set before the env package reads them
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	env.LoadEnv()

	runner := fx.NewRunner().HandleSignals()
	conf := env.NewConfig()
	root := cmds.New(conf)
	preRun := root.Command.PersistentPreRunE
	root.Command.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := preRun(cmd, args); err != nil {
			return err
		}
		if conf.MetricsAddr != "" {
			runner.Go(fx.RunFunc(func(ctx context.Context) error {
				return serveMetrics(ctx, conf.MetricsAddr)
			}))
		}
		return nil
	}

	err := root.Execute(runner.Context)
	if closeErr := comm.DefaultRegistry().CloseAll(); closeErr != nil {
		glog.Warningf("close connections: %v", closeErr)
	}
	comm.DefaultRegistry().Stop()
	glog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
