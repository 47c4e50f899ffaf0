package http

import (
	"context"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/tentens-tech/rental-deposit/internal/application"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/ratelimit"
)

const DefaultRequestIDHeader = "x-request-id"

type Server struct {
	app     *application.Application
	limiter *ratelimit.Limiter
	Server  *http.Server
}

func New(app *application.Application) *Server {
	s := &Server{
		app: app,
	}
	if app.Config.RateLimit.Enabled {
		s.limiter = ratelimit.New(app.Config.RateLimit.RPS, app.Config.RateLimit.Burst)
	}

	s.Server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  app.Config.Server.Timeout.Read,
		WriteTimeout: app.Config.Server.Timeout.Write,
		IdleTimeout:  app.Config.Server.Timeout.Idle,
	}

	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /leases", s.limited(s.app.CreateLeaseHandler(), callerKey))
	mux.HandleFunc("GET /leases", s.app.ListLeasesHandler())
	mux.HandleFunc("GET /leases/count", s.app.LeaseCountHandler())
	mux.HandleFunc("GET /leases/{id}", s.app.LeaseDetailsHandler())
	mux.Handle("POST /leases/{id}/approve", s.limited(s.app.ApproveDepositReturnHandler(), callerKey))
	mux.Handle("POST /leases/{id}/withdraw", s.limited(s.app.WithdrawDepositHandler(), callerKey))
	mux.Handle("POST /leases/{id}/return", s.limited(s.app.ReturnDepositHandler(), callerKey))
	mux.HandleFunc("GET /accounts/{account}/balance", s.app.BalanceHandler())
	mux.Handle("POST /accounts/{account}/fund", s.limited(s.app.FundHandler(), pathAccountKey))
	mux.HandleFunc("GET /health", application.HealthHandler())
	mux.Handle("GET /metrics", promhttp.Handler())

	if s.app.Config.Server.PPROFEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	return withRequestID(mux)
}

func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	return s.Server.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}

func callerKey(r *http.Request) string {
	return r.Header.Get(application.DefaultAccountHeader)
}

func pathAccountKey(r *http.Request) string {
	return r.PathValue("account")
}

// limited rejects requests whose account, as picked by key, exceeded its
// token bucket.
func (s *Server) limited(next http.Handler, key func(*http.Request) string) http.Handler {
	if s.limiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := key(r)
		if !s.limiter.Allow(account, time.Now()) {
			log.Warnf("Rate limit exceeded for %v on %v", account, r.URL.Path)
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(DefaultRequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(DefaultRequestIDHeader, requestID)

		start := time.Now()
		next.ServeHTTP(w, r)

		log.WithFields(log.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"account":    r.Header.Get(application.DefaultAccountHeader),
			"duration":   time.Since(start),
		}).Debug("Request served")
	})
}
