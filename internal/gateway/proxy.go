package gateway

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/collabhub/realtime/internal/apperr"
	"github.com/collabhub/realtime/internal/logging"
	"github.com/collabhub/realtime/internal/metrics"
)

// upstreamFailedKey carries a per-request *bool the shared proxy's
// ErrorHandler sets on failure, since httputil.ReverseProxy itself is
// reused across concurrent requests and must not be mutated per call.
type upstreamFailedKeyType struct{}

var upstreamFailedKey = upstreamFailedKeyType{}

// backend is one upstream the gateway routes to, with its own independent
// connector and circuit breaker (spec §4.1: "each backend has an
// independent connector"). Grounded on the bus package's gobreaker.Settings
// shape (internal/bus/redis.go), generalized from Redis to an HTTP/duplex
// upstream.
type backend struct {
	name   string
	target *url.URL
	proxy  *httputil.ReverseProxy
	cb     *gobreaker.CircuitBreaker
}

func newBackend(name, rawURL string) (*backend, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s service url %q: %w", name, rawURL, err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if flag, ok := r.Context().Value(upstreamFailedKey).(*bool); ok {
			*flag = true
		}
		logging.Warn(r.Context(), "gateway: upstream request failed", zap.String("backend", name), zap.Error(err))
		writeServiceUnavailable(w, name)
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(metrics.BreakerStateValue(to.String()))
		},
	}

	return &backend{name: name, target: target, proxy: proxy, cb: gobreaker.NewCircuitBreaker(st)}, nil
}

// ServeHTTP forwards a request/response call through the circuit breaker.
// A breaker trip short-circuits before the proxy ever dials the upstream.
func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var upstreamErrored bool
	r = r.WithContext(context.WithValue(r.Context(), upstreamFailedKey, &upstreamErrored))
	_, err := b.cb.Execute(func() (interface{}, error) {
		rec := &statusRecorder{ResponseWriter: w}
		b.proxy.ServeHTTP(rec, r)
		if upstreamErrored || rec.status >= http.StatusInternalServerError {
			return nil, fmt.Errorf("upstream %s returned an error", b.name)
		}
		return nil, nil
	})
	if err != nil {
		metrics.GatewayUpstreamErrors.WithLabelValues(b.name).Inc()
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			// the proxy never ran: the response hasn't been written yet.
			writeServiceUnavailable(w, b.name)
		}
	}
}

// ServeDuplex implements the explicit upgrade-aware proxy the design notes
// require (spec §9): hijack the client connection, dial the backend
// directly, replay the original handshake, then run two independent byte
// pumps until either side closes. This deliberately bypasses
// httputil.ReverseProxy, whose upgrade support is an undocumented internal
// detail rather than a documented contract.
func (b *backend) ServeDuplex(w http.ResponseWriter, r *http.Request) {
	var dialFailed bool
	_, err := b.cb.Execute(func() (interface{}, error) {
		if execErr := b.pumpDuplex(w, r); execErr != nil {
			dialFailed = true
			return nil, execErr
		}
		return nil, nil
	})
	if err != nil {
		metrics.GatewayUpstreamErrors.WithLabelValues(b.name).Inc()
		logging.Warn(r.Context(), "gateway: duplex proxy failed", zap.String("backend", b.name), zap.Error(err))
		if dialFailed || err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			writeServiceUnavailable(w, b.name)
		}
	}
}

func (b *backend) pumpDuplex(w http.ResponseWriter, r *http.Request) error {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		return fmt.Errorf("response writer for backend %s does not support hijacking", b.name)
	}
	clientConn, clientRW, err := hijacker.Hijack()
	if err != nil {
		return fmt.Errorf("hijack client connection for backend %s: %w", b.name, err)
	}

	dialer := net.Dialer{Timeout: 5 * time.Second}
	backendConn, err := dialer.DialContext(r.Context(), "tcp", b.target.Host)
	if err != nil {
		clientConn.Close()
		return fmt.Errorf("dial backend %s: %w", b.name, err)
	}

	outReq := r.Clone(r.Context())
	outReq.URL.Scheme = b.target.Scheme
	outReq.URL.Host = b.target.Host
	outReq.RequestURI = ""
	outReq.Host = b.target.Host

	if err := outReq.Write(backendConn); err != nil {
		clientConn.Close()
		backendConn.Close()
		return fmt.Errorf("relay handshake to backend %s: %w", b.name, err)
	}

	metrics.ActiveDuplexConnections.WithLabelValues("gateway").Inc()
	go func() {
		defer metrics.ActiveDuplexConnections.WithLabelValues("gateway").Dec()
		relay(clientConn, clientRW, backendConn)
	}()
	return nil
}

// relay runs the two byte pumps until either direction ends, then closes
// both connections so the other pump unblocks (spec §4.1: "operate two
// independent byte pumps ... until either side closes, then close the
// other").
func relay(clientConn net.Conn, clientRW *bufio.ReadWriter, backendConn net.Conn) {
	defer clientConn.Close()
	defer backendConn.Close()

	done := make(chan struct{}, 2)
	go func() {
		copyFlushed(backendConn, clientRW.Reader)
		done <- struct{}{}
	}()
	go func() {
		copyFlushed(clientRW.Writer, backendConn)
		done <- struct{}{}
	}()
	<-done
}

// copyFlushed is io.Copy that flushes a buffered destination after every
// read, so a duplex protocol's individual frames aren't held back waiting
// for bufio's buffer to fill.
func copyFlushed(dst io.Writer, src io.Reader) {
	type flusher interface{ Flush() error }
	f, canFlush := dst.(flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return
			}
			if canFlush {
				if err := f.Flush(); err != nil {
					return
				}
			}
		}
		if readErr != nil {
			return
		}
	}
}

// statusRecorder captures the status code a wrapped ResponseWriter produced,
// without buffering the body, so ServeHTTP can tell the circuit breaker
// whether the upstream call succeeded.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.status = http.StatusOK
		r.wroteHeader = true
	}
	return r.ResponseWriter.Write(b)
}

func writeServiceUnavailable(w http.ResponseWriter, backendName string) {
	appErr := apperr.Backend(backendName, fmt.Sprintf("%s is unavailable", backendName))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	fmt.Fprintf(w, `{"success":false,"error":%q,"backend":%q}`, appErr.Code, backendName)
}

// isUpgrade reports whether r is requesting a protocol upgrade (spec §4.1:
// "when an incoming request carries the duplex-upgrade signal"). Checked as
// a token list, not a bare substring match, since "Connection: keep-alive,
// Upgrade" is a valid header value.
func isUpgrade(r *http.Request) bool {
	if r.Header.Get("Upgrade") == "" {
		return false
	}
	for _, token := range strings.Split(r.Header.Get("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(token), "Upgrade") {
			return true
		}
	}
	return false
}
