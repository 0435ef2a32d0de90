package networking

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/petrzlen/whisper-relay/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const requestIDHeader = "X-Request-ID"

func getClientIpAddress(r *http.Request) (clientIP string) {
	// Get client IP from RemoteAddr
	clientIP = r.RemoteAddr

	// Check for real IP in headers (useful if behind proxy)
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		clientIP = realIP
	} else if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		clientIP = forwardedFor
	}
	return
}

// statusRecorder remembers the status code for logs and metrics.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// withRequestLogging gives every request an ID and a child logger in its context, then logs and measures it.
func withRequestLogging(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()
			requestID := r.Header.Get(requestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, requestID)

			logger := log.With().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("client_ip", getClientIpAddress(r)).
				Logger()
			r = r.WithContext(logger.WithContext(r.Context()))

			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("handler panicked")
					if !recorder.written {
						writeError(recorder, http.StatusInternalServerError, errSpeechToTextFailed)
					}
				}

				route := routeTemplate(r)
				duration := time.Since(startTime)
				m.RecordHTTPRequest(r.Method, route, strconv.Itoa(recorder.statusCode), duration.Seconds())

				event := logger.Info()
				if recorder.statusCode >= http.StatusInternalServerError {
					event = logger.Warn()
				}
				event.Str("route", route).Int("status_code", recorder.statusCode).Dur("request_time", duration).Msg("request done")
			}()

			next.ServeHTTP(recorder, r)
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if template, err := route.GetPathTemplate(); err == nil {
			return template
		}
	}
	return "unmatched"
}

// withCORS allows one configured origin and answers preflights directly.
func withCORS(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET,HEAD,PUT,PATCH,POST,DELETE")
			if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
				w.Header().Set("Access-Control-Allow-Headers", requested)
				w.Header().Add("Vary", "Access-Control-Request-Headers")
			}
			w.Header().Set("Content-Length", "0")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggerFrom is zerolog.Ctx with a shorter name, handlers use it a lot.
func loggerFrom(r *http.Request) *zerolog.Logger {
	return zerolog.Ctx(r.Context())
}
