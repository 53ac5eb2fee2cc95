package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/internal/hub"
)

// apiStatus is the body of GET /api/status.
type apiStatus struct {
	hub.Status
	MQTTDropped uint64 `json:"mqtt_dropped"`
}

// NewAPIMux wires the HTTP API: the status snapshot and the control socket.
func NewAPIMux(ctl *ControlHandler, sink *MQTTSink) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		body := apiStatus{Status: ctl.Hub.Status()}
		if sink != nil {
			body.MQTTDropped = sink.Dropped()
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			log.Warnf("api: json encode error: %v", err)
		}
	})
	mux.Handle("/ws/control", ctl)
	return mux
}

// ServeAPI listens on iface:port until ctx is cancelled.
func ServeAPI(ctx context.Context, iface string, port int, handler http.Handler) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(iface, strconv.Itoa(port)),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infof("api: listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
