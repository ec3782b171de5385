package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/brindes-backend/api/responses"
	pkgerrors "github.com/angelmondragon/brindes-backend/pkg/errors"
	"github.com/angelmondragon/brindes-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/brindes-backend/pkg/redis"
)

const (
	// approvals, rejections, cancellations and deliveries move money and
	// stock, so their keys outlive the configured default.
	transitionIdempotencyTTL = 7 * 24 * time.Hour

	idempotencyHeader       = "Idempotency-Key"
	idempotencyReplayHeader = "Idempotency-Replayed"
	maxIdempotencyKeyLen    = 128
)

type idempotentRoute struct {
	segments   []string
	transition bool
}

func route(pattern string, transition bool) idempotentRoute {
	return idempotentRoute{segments: splitPath(pattern), transition: transition}
}

// POST routes guarded by Idempotency-Key; "{id}" matches any single segment.
var idempotentRoutes = []idempotentRoute{
	route("/api/v1/requests", false),
	route("/api/v1/inventory/{id}/movements", false),
	route("/api/v1/requests/{id}/approve", true),
	route("/api/v1/requests/{id}/reject", true),
	route("/api/v1/requests/{id}/cancel", true),
	route("/api/v1/requests/{id}/delivery", true),
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	BodyHash    string `json:"body_hash"`
}

// Idempotency replays the stored response of a guarded route when the same
// actor repeats an Idempotency-Key with an identical body. A different body
// under a known key is rejected with IDEMPOTENCY_KEY_REUSED.
func Idempotency(store pkgredis.IdempotencyStore, defaultTTL time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, guarded := routeTTL(r.Method, r.URL.Path, defaultTTL)
			if !guarded || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" || len(clientKey) > maxIdempotencyKeyLen {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required").
					WithDetails(map[string]any{"header": idempotencyHeader, "max_length": maxIdempotencyKeyLen}))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			bodyHash := digest(body)
			key := store.IdempotencyKey(actorScope(r), clientKey)

			raw, err := store.Get(ctx, key)
			switch {
			case err != nil && !pkgredis.IsNil(err):
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency key"))
				return
			case err == nil:
				var stored storedResponse
				if err := json.Unmarshal([]byte(raw), &stored); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode stored response"))
					return
				}
				if stored.BodyHash != bodyHash {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				stored.replay(w)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusOrOK()
			if !replayable(status) {
				return
			}
			payload, err := json.Marshal(storedResponse{
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				BodyHash:    bodyHash,
			})
			if err != nil {
				logg.Error(ctx, "idempotency.encode_failed", err)
				return
			}
			if _, err := store.SetNX(ctx, key, string(payload), ttl); err != nil {
				logg.Error(logg.WithField(ctx, "ttl", ttl.String()), "idempotency.store_failed", err)
			}
		})
	}
}

// replayable excludes conflicts and server failures, which callers are
// expected to retry with the same key.
func replayable(status int) bool {
	return status < http.StatusInternalServerError && status != http.StatusConflict
}

func (s storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set(idempotencyReplayHeader, "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

func actorScope(r *http.Request) string {
	return strconv.FormatInt(UserIDFromContext(r.Context()), 10) + "|" + r.Method + "|" + r.URL.Path
}

func digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func routeTTL(method, path string, defaultTTL time.Duration) (time.Duration, bool) {
	if method != http.MethodPost {
		return 0, false
	}
	segments := splitPath(path)
	for _, rt := range idempotentRoutes {
		if !rt.matches(segments) {
			continue
		}
		if rt.transition {
			return max(transitionIdempotencyTTL, defaultTTL), true
		}
		return defaultTTL, true
	}
	return 0, false
}

func (rt idempotentRoute) matches(segments []string) bool {
	if len(segments) != len(rt.segments) {
		return false
	}
	for i, want := range rt.segments {
		if want != "{id}" && want != segments[i] {
			return false
		}
	}
	return true
}

func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusOrOK() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
