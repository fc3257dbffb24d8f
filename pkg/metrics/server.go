package metrics

import (
	"context"
	"net/http"

	"github.com/apex/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Serve exposes /metrics on listen until ctx is cancelled. A single
// route doesn't warrant the teacher's full gorilla/mux router, so this
// uses a bare http.ServeMux instead.
func Serve(ctx context.Context, listen string) {
	if listen == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: listen, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	log.WithField("listen", listen).Info("serving /metrics")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("metrics server stopped")
	}
}
