package api

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/ballot"
	"github.com/xraph/ballot/id"
	"github.com/xraph/ballot/types"
)

const requestIDKey = "request_id"

// requestID propagates or assigns a correlation id.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if rid == "" {
			rid = id.NewRequestID().String()
		}
		c.Set(requestIDKey, rid)
		c.Header(HeaderRequestID, rid)
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
			"request_id", c.GetString(requestIDKey),
		}
		if err := c.Errors.Last(); err != nil {
			logger.Error("api: request failed", append(attrs, "error", err.Err)...)
			return
		}
		logger.Debug("api: request", attrs...)
	}
}

// identify puts the caller header on the request context. A missing
// header is not an error here: read endpoints are public and the engine
// rejects anonymous writes with ErrMissingCaller. Without a verifier the
// header is trusted as given.
func identify(verifier *SignatureVerifier, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderCaller)
		if raw == "" {
			c.Next()
			return
		}
		caller := types.NormalizeAddress(raw)

		if verifier == nil {
			logger.Warn("api: trusting unsigned caller header",
				"caller", caller.String(),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			)
		} else if err := verifySigned(c, verifier, caller); err != nil {
			logger.Warn("api: caller signature rejected",
				"caller", caller.String(),
				"path", c.Request.URL.Path,
				"error", err,
			)
			fail(c, err)
			return
		}

		c.Request = c.Request.WithContext(ballot.WithCaller(c.Request.Context(), caller))
		c.Next()
	}
}

// verifySigned reads the body for hashing and puts it back for the handler.
func verifySigned(c *gin.Context, verifier *SignatureVerifier, caller types.Address) error {
	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(c.Request.Body, maxSignedBody+1))
		if err != nil {
			return fmt.Errorf("%w: read body: %v", ErrBadSignature, err)
		}
		if len(body) > maxSignedBody {
			return fmt.Errorf("%w: body exceeds %d bytes", ErrBadSignature, maxSignedBody)
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
	}
	return verifier.Verify(caller, c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery,
		body, c.GetHeader(HeaderTimestamp), c.GetHeader(HeaderSignature))
}

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ballot",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of API requests.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ballot",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

func (m *metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
