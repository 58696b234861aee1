// Package api exposes the ballot engine over HTTP with gin.
//
// The caller identity is taken from the X-Caller-Address header. When
// signature verification is enabled the header must be backed by an
// EIP-191 personal signature, otherwise it is trusted as given and the
// deployment is expected to authenticate requests upstream.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/ballot"
)

// Header names used by the API.
const (
	HeaderCaller    = "X-Caller-Address"
	HeaderSignature = "X-Caller-Signature"
	HeaderTimestamp = "X-Caller-Timestamp"
	HeaderRequestID = "X-Request-ID"
)

// Server routes HTTP requests to an Engine.
type Server struct {
	engine   *ballot.Engine
	router   *gin.Engine
	logger   *slog.Logger
	basePath string

	registerer prometheus.Registerer
	verifier   *SignatureVerifier
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithBasePath mounts every route under path, e.g. "/ballot".
func WithBasePath(path string) Option {
	return func(s *Server) { s.basePath = path }
}

// WithMetrics records request metrics into reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Server) { s.registerer = reg }
}

// WithSignatureVerification requires every caller header to be signed.
func WithSignatureVerification(v *SignatureVerifier) Option {
	return func(s *Server) { s.verifier = v }
}

// NewServer builds the router for engine.
func NewServer(engine *ballot.Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), requestLogger(s.logger))
	if s.registerer != nil {
		router.Use(newMetrics(s.registerer).middleware())
	}
	s.router = router
	s.routes()

	return s
}

// Handler returns the http.Handler serving the API.
func (s *Server) Handler() http.Handler { return s.router }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	g := s.router.Group(s.basePath)
	g.Use(identify(s.verifier, s.logger))

	g.GET("/healthz", s.health)

	projects := g.Group("/projects")
	projects.POST("", s.registerProject)
	projects.GET("", s.listProjects)
	projects.GET("/count", s.projectCount)
	projects.GET("/:id", s.projectDetails)
	projects.POST("/:id/votes", s.castVote)

	voters := g.Group("/voters/:address")
	voters.GET("", s.voterDetails)
	voters.GET("/votes", s.listVotes)
	voters.GET("/projects/:id", s.hasVoted)

	fees := g.Group("/fees")
	fees.GET("", s.feeDetails)
	fees.PUT("", s.updateFee)
	fees.GET("/changes", s.listFeeChanges)
	fees.GET("/withdrawals", s.listWithdrawals)
	fees.POST("/withdrawals", s.withdrawFees)
}
