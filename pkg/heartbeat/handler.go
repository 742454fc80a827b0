package heartbeat

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Response bodies written by the heartbeat endpoint.
const (
	BodyOK               = "OK"
	BodyMissingName      = "Missing 'name' parameter"
	BodyMethodNotAllowed = "Method not allowed"
	BodyInternalError    = "Internal server error"
)

// Handler returns the HTTP handler serving heartbeats on every path.
// It does not require the server to be running.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

func (s *Server) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(s.recoverer)

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.reply(w, http.StatusMethodNotAllowed, BodyMethodNotAllowed)
	})
	router.HandleFunc("/*", s.handleHeartbeat)

	return router
}

// recoverer turns a panic in the handler into a 500 response.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("heartbeat request handling error",
					zap.Any("panic", rec),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.Stack("stack"),
				)
				s.reply(w, http.StatusInternalServerError, BodyInternalError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "heartbeat.receive")
	defer span.End()

	if r.Method != http.MethodPost {
		span.SetAttributes(attribute.Int("http.status_code", http.StatusMethodNotAllowed))
		s.reply(w, http.StatusMethodNotAllowed, BodyMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		err = fmt.Errorf("read body: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body")
		s.logger.Error("heartbeat request handling error",
			zap.String("request_id", middleware.GetReqID(ctx)),
			zap.Error(err),
		)
		s.reply(w, http.StatusInternalServerError, BodyInternalError)
		return
	}

	name, ok := ParseName(string(body))
	if !ok {
		span.SetAttributes(attribute.Int("http.status_code", http.StatusBadRequest))
		s.reply(w, http.StatusBadRequest, BodyMissingName)
		return
	}

	s.registry.Touch(name, time.Now())
	s.metrics.SetTrackedClients(s.registry.Len())
	span.SetAttributes(
		attribute.String("heartbeat.client", name),
		attribute.Int("http.status_code", http.StatusOK),
	)

	s.reply(w, http.StatusOK, BodyOK)
	s.logger.Debug("heartbeat received",
		zap.String("name", name),
		zap.String("request_id", middleware.GetReqID(ctx)),
	)
}

func (s *Server) reply(w http.ResponseWriter, status int, body string) {
	s.metrics.ObserveRequest(status)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil {
		s.logger.Debug("heartbeat response write failed", zap.Int("status", status), zap.Error(err))
	}
}

// ParseName extracts the percent-decoded value of the first "name" pair from
// a form-encoded body. Pairs that do not split into exactly a key and a value
// are skipped. Keys and values are trimmed before comparison and decoding.
// It reports false when no pair matches or the decoded value is empty.
func ParseName(body string) (string, bool) {
	if body == "" {
		return "", false
	}

	for _, pair := range strings.Split(body, "&") {
		parts := strings.Split(pair, "=")
		if len(parts) != 2 || strings.TrimSpace(parts[0]) != "name" {
			continue
		}
		name := unescape(strings.TrimSpace(parts[1]))
		return name, name != ""
	}

	return "", false
}

// unescape decodes %XX sequences without treating '+' as a space. Escapes
// that are malformed, or whose bytes do not form valid UTF-8, stay verbatim.
func unescape(value string) string {
	if !strings.Contains(value, "%") {
		return value
	}

	var out strings.Builder
	out.Grow(len(value))

	for i := 0; i < len(value); {
		run, n := escapedRun(value[i:])
		if n == 0 {
			out.WriteByte(value[i])
			i++
			continue
		}
		writeRun(&out, run, value[i:i+n])
		i += n
	}
	return out.String()
}

// escapedRun decodes the consecutive well-formed %XX escapes at the start of s
// and reports how many bytes of s they span.
func escapedRun(s string) ([]byte, int) {
	var run []byte
	n := 0
	for n+2 < len(s) && s[n] == '%' {
		hi, ok := unhex(s[n+1])
		if !ok {
			break
		}
		lo, ok := unhex(s[n+2])
		if !ok {
			break
		}
		run = append(run, hi<<4|lo)
		n += 3
	}
	return run, n
}

// writeRun emits the valid UTF-8 sequences of run and the original escape
// text from raw for every byte that is not part of one.
func writeRun(out *strings.Builder, run []byte, raw string) {
	for j := 0; j < len(run); {
		r, size := utf8.DecodeRune(run[j:])
		if r == utf8.RuneError && size <= 1 {
			out.WriteString(raw[3*j : 3*j+3])
			j++
			continue
		}
		out.Write(run[j : j+size])
		j += size
	}
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
