// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/danielhkuo/chorewheel/auth"
	"github.com/danielhkuo/chorewheel/metrics"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/power"
)

// HouseKeyHeader carries the key returned when a house is created.
const HouseKeyHeader = "X-House-Key"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// WithLogging wraps a handler with request logging and latency metrics
func WithLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		slog.Info("request started",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", GetClientIP(r),
		)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		duration := time.Since(start)
		metrics.RequestDuration.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Observe(duration.Seconds())
		slog.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", duration.Milliseconds(),
		)
	}
}

// RequireHouseKey rejects requests whose X-House-Key does not match the
// {house} path value
func RequireHouseKey(salt string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ValidHouseKey(r, r.PathValue("house"), salt) {
			ErrorResponse(w, http.StatusUnauthorized, "Invalid house key")
			return
		}
		next(w, r)
	}
}

// ValidHouseKey reports whether the request carries the key for houseID
func ValidHouseKey(r *http.Request, houseID, salt string) bool {
	if houseID == "" {
		return false
	}
	return auth.ValidateHouseKey(houseID, r.Header.Get(HouseKeyHeader), salt) == nil
}

// JSONResponse writes a JSON response
func JSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// ErrorResponse writes a JSON error response
func ErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	JSONResponse(w, statusCode, models.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}

var domainStatus = []struct {
	err    error
	status int
}{
	{models.ErrHouseNotFound, http.StatusNotFound},
	{models.ErrResidentNotFound, http.StatusNotFound},
	{models.ErrChoreNotFound, http.StatusNotFound},
	{models.ErrClaimNotFound, http.StatusNotFound},
	{models.ErrChallengeNotFound, http.StatusNotFound},
	{models.ErrProposalNotFound, http.StatusNotFound},
	{models.ErrPollNotFound, http.StatusNotFound},
	{models.ErrInvalidVoter, http.StatusForbidden},
	{models.ErrPollClosed, http.StatusConflict},
	{models.ErrPollNotClosed, http.StatusConflict},
	{models.ErrProposalAlreadyResolved, http.StatusConflict},
	{models.ErrChallengeAlreadyResolved, http.StatusConflict},
	{models.ErrActiveChallengeExists, http.StatusConflict},
	{models.ErrZeroValueClaim, http.StatusConflict},
	{models.ErrInsufficientBalanceForGift, http.StatusConflict},
	{models.ErrInvalidVote, http.StatusBadRequest},
	{models.ErrInvalidPreference, http.StatusBadRequest},
	{models.ErrInvalidProposal, http.StatusBadRequest},
	{models.ErrInvalidBreak, http.StatusBadRequest},
	{models.ErrInvalidValue, http.StatusBadRequest},
	{models.ErrBreakTooShort, http.StatusBadRequest},
	{models.ErrSpecialValueTooLarge, http.StatusBadRequest},
	{models.ErrInvalidThingProposal, http.StatusBadRequest},
	{models.ErrThingNotFound, http.StatusNotFound},
	{models.ErrThingBuyNotFound, http.StatusNotFound},
	{models.ErrSpecialChoreClaimed, http.StatusConflict},
	{models.ErrInsufficientFunds, http.StatusConflict},
	{models.ErrThingBuyFulfilled, http.StatusConflict},
	{power.ErrTooFewItems, http.StatusBadRequest},
}

// DomainStatus maps a domain error to its HTTP status. Unknown errors
// are 500s.
func DomainStatus(err error) int {
	for _, d := range domainStatus {
		if errors.Is(err, d.err) {
			return d.status
		}
	}
	return http.StatusInternalServerError
}

// DomainError writes err with the status DomainStatus picks. Internal
// errors are logged and their message is not exposed.
func DomainError(w http.ResponseWriter, err error) {
	status := DomainStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		ErrorResponse(w, status, "Internal error")
		return
	}
	ErrorResponse(w, status, err.Error())
}

// ParseJSONBody parses the request body into the given struct
func ParseJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return nil
}

// ParseOptionalJSONBody is ParseJSONBody for routes whose body may be empty
func ParseOptionalJSONBody(r *http.Request, v interface{}) error {
	if err := ParseJSONBody(r, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// CORS lets browsers on the listed origins call the API. A "*" entry allows
// any origin. Other origins get no CORS headers and their preflights are
// refused. Credentials are never allowed.
func CORS(origins []string, next http.Handler) http.Handler {
	allowAll := slices.Contains(origins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := origin != "" && (allowAll || slices.Contains(origins, origin))

		if allowed {
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+HouseKeyHeader)
		}

		// Preflight
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if !allowed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// GetClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then
// RemoteAddr without its port
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
