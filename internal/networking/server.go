package networking

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/petrzlen/whisper-relay/internal/metrics"
	"github.com/petrzlen/whisper-relay/pkg/relay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type RouterConfig struct {
	Relay      *relay.Relay
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	CORSOrigin string
	// Now is the clock of the echo endpoint, time.Now if nil.
	Now func() time.Time
}

// NewRouter wires all routes. The CORS layer wraps the router so preflights never reach a route.
func NewRouter(config RouterConfig) http.Handler {
	h := &handlers{relay: config.Relay, now: config.Now}
	if h.now == nil {
		h.now = time.Now
	}

	router := mux.NewRouter()
	router.Use(withRequestLogging(config.Metrics))

	router.HandleFunc("/", h.handleRoot).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/api/test", h.handleEcho).Methods(http.MethodPost)
	router.HandleFunc("/api/stt", h.handleSTT).Methods(http.MethodPost)
	if config.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return withCORS(config.CORSOrigin, router)
}

// NewHTTPServer sets timeouts around the provider deadline: writes may legitimately take as long as the provider call.
func NewHTTPServer(address string, handler http.Handler, providerTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      providerTimeout + 2*time.Minute + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func errLog(err error, what string) {
	if err != nil {
		log.Error().Err(err).Msg(what)
	}
}

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}
