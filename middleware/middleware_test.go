// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielhkuo/chorewheel/auth"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/power"
)

func TestWithLogging_RecordsStatus(t *testing.T) {
	testCases := []struct {
		name     string
		handler  http.HandlerFunc
		expected int
	}{
		{"implicit ok", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("OK")) }, http.StatusOK},
		{"created", func(w http.ResponseWriter, r *http.Request) {
			JSONResponse(w, http.StatusCreated, models.AddHouseResponse{HouseID: "H1"})
		}, http.StatusCreated},
		{"domain error", func(w http.ResponseWriter, r *http.Request) { DomainError(w, models.ErrPollClosed) }, http.StatusConflict},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WithLogging(tc.handler)(w, httptest.NewRequest("POST", "/houses/H1/resolve", nil))

			if w.Code != tc.expected {
				t.Errorf("Expected status %d, got %d", tc.expected, w.Code)
			}
		})
	}
}

func TestRequireHouseKey(t *testing.T) {
	const salt = "test-house-salt"
	called := false
	handler := RequireHouseKey(salt, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /houses/{house}/hearts", handler)

	testCases := []struct {
		name     string
		key      string
		expected int
	}{
		{"valid key", auth.GenerateHouseKey("H1", salt), http.StatusOK},
		{"other house key", auth.GenerateHouseKey("H2", salt), http.StatusUnauthorized},
		{"other salt", auth.GenerateHouseKey("H1", "other-salt"), http.StatusUnauthorized},
		{"missing key", "", http.StatusUnauthorized},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			called = false
			req := httptest.NewRequest("GET", "/houses/H1/hearts", nil)
			if tc.key != "" {
				req.Header.Set(HouseKeyHeader, tc.key)
			}
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			if w.Code != tc.expected {
				t.Errorf("Expected status %d, got %d", tc.expected, w.Code)
			}
			if called != (tc.expected == http.StatusOK) {
				t.Errorf("Expected handler called = %v", tc.expected == http.StatusOK)
			}
			if tc.expected == http.StatusUnauthorized {
				var resp models.ErrorResponse
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("Failed to decode error response: %v", err)
				}
				if resp.Error != "Unauthorized" || resp.Message != "Invalid house key" {
					t.Errorf("Unexpected error response: %+v", resp)
				}
			}
		})
	}
}

func TestValidHouseKeyWithoutHouse(t *testing.T) {
	req := httptest.NewRequest("GET", "/polls/P1", nil)
	req.Header.Set(HouseKeyHeader, auth.GenerateHouseKey("", "salt"))

	if ValidHouseKey(req, "", "salt") {
		t.Error("Expected an empty house id to be rejected")
	}
}

func TestDomainStatus(t *testing.T) {
	testCases := []struct {
		err      error
		expected int
	}{
		{models.ErrHouseNotFound, http.StatusNotFound},
		{models.ErrThingNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: R9", models.ErrInvalidVoter), http.StatusForbidden},
		{models.ErrPollNotClosed, http.StatusConflict},
		{models.ErrActiveChallengeExists, http.StatusConflict},
		{models.ErrInsufficientBalanceForGift, http.StatusConflict},
		{models.ErrInsufficientFunds, http.StatusConflict},
		{models.ErrSpecialChoreClaimed, http.StatusConflict},
		{fmt.Errorf("%w: 1 day", models.ErrBreakTooShort), http.StatusBadRequest},
		{models.ErrSpecialValueTooLarge, http.StatusBadRequest},
		{models.ErrInvalidProposal, http.StatusBadRequest},
		{power.ErrTooFewItems, http.StatusBadRequest},
		{nil, http.StatusInternalServerError},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		if got := DomainStatus(tc.err); got != tc.expected {
			t.Errorf("DomainStatus(%v) = %d, want %d", tc.err, got, tc.expected)
		}
	}
}

func TestDomainError(t *testing.T) {
	testCases := []struct {
		err      error
		expected int
		message  string
	}{
		{models.ErrChoreNotFound, http.StatusNotFound, "chore not found"},
		{fmt.Errorf("%w: R9", models.ErrInvalidVoter), http.StatusForbidden, "invalid voter for poll: R9"},
		{models.ErrZeroValueClaim, http.StatusConflict, "cannot claim a zero-value chore"},
		{errors.New("disk full"), http.StatusInternalServerError, "Internal error"},
	}

	for _, tc := range testCases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			DomainError(w, tc.err)

			if w.Code != tc.expected {
				t.Errorf("Expected status %d, got %d", tc.expected, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected JSON content type, got %q", ct)
			}

			var resp models.ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode error response: %v", err)
			}
			if resp.Error != http.StatusText(tc.expected) || resp.Message != tc.message {
				t.Errorf("Unexpected error response: %+v", resp)
			}
		})
	}
}

func TestParseJSONBody(t *testing.T) {
	body := `{"resident_id":"R1","vote":"nay","now":"2024-06-16T12:00:00Z"}`
	var req models.SubmitVoteRequest
	if err := ParseJSONBody(httptest.NewRequest("POST", "/polls/P1/votes", strings.NewReader(body)), &req); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if req.ResidentID != "R1" || req.Vote != models.VoteNay {
		t.Errorf("Unexpected request: %+v", req)
	}
	if req.Now == nil || !req.Now.Equal(time.Date(2024, 6, 16, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected now from the embedded trigger, got %v", req.Now)
	}

	for _, bad := range []string{"", "{bad", `{"resident_id":7}`} {
		var req models.SubmitVoteRequest
		if err := ParseJSONBody(httptest.NewRequest("POST", "/polls/P1/votes", strings.NewReader(bad)), &req); err == nil {
			t.Errorf("Expected error for body %q", bad)
		}
	}
}

func TestParseOptionalJSONBody(t *testing.T) {
	var req models.TriggerRequest
	if err := ParseOptionalJSONBody(httptest.NewRequest("POST", "/", strings.NewReader("")), &req); err != nil {
		t.Errorf("Expected empty body to be accepted, got %v", err)
	}
	if req.Now != nil {
		t.Error("Expected now to stay unset")
	}

	body := `{"now":"2024-06-01T00:00:00Z"}`
	if err := ParseOptionalJSONBody(httptest.NewRequest("POST", "/", strings.NewReader(body)), &req); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if req.Now == nil || req.Now.Month() != 6 {
		t.Errorf("Expected now to be June 1, got %v", req.Now)
	}

	if err := ParseOptionalJSONBody(httptest.NewRequest("POST", "/", strings.NewReader("{bad")), &req); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	testCases := []struct {
		name        string
		origins     []string
		method      string
		origin      string
		preflight   bool
		status      int
		allowOrigin string
	}{
		{"listed origin", []string{"https://house.example"}, "GET", "https://house.example", false, http.StatusTeapot, "https://house.example"},
		{"unlisted origin", []string{"https://house.example"}, "GET", "https://evil.example", false, http.StatusTeapot, ""},
		{"no origins configured", nil, "GET", "https://house.example", false, http.StatusTeapot, ""},
		{"same origin", []string{"https://house.example"}, "GET", "", false, http.StatusTeapot, ""},
		{"wildcard", []string{"*"}, "POST", "https://any.example", false, http.StatusTeapot, "*"},
		{"listed preflight", []string{"https://house.example"}, "OPTIONS", "https://house.example", true, http.StatusNoContent, "https://house.example"},
		{"unlisted preflight", []string{"https://house.example"}, "OPTIONS", "https://evil.example", true, http.StatusForbidden, ""},
		{"plain options", []string{"https://house.example"}, "OPTIONS", "https://house.example", false, http.StatusTeapot, "https://house.example"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/houses/H1/chores", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.preflight {
				req.Header.Set("Access-Control-Request-Method", "POST")
			}
			w := httptest.NewRecorder()
			CORS(tc.origins, next).ServeHTTP(w, req)

			if w.Code != tc.status {
				t.Errorf("Expected status %d, got %d", tc.status, w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tc.allowOrigin {
				t.Errorf("Expected Access-Control-Allow-Origin %q, got %q", tc.allowOrigin, got)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
				t.Errorf("Expected no credentials header, got %q", got)
			}
			if tc.allowOrigin != "" && !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), HouseKeyHeader) {
				t.Errorf("Expected %s to be an allowed header", HouseKeyHeader)
			}
		})
	}
}

func TestGetClientIP(t *testing.T) {
	testCases := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:4000", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.2:4000", "198.51.100.4"},
		{"remote ipv4", nil, "192.0.2.1:51234", "192.0.2.1"},
		{"remote ipv6", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"remote without port", nil, "192.0.2.1", "192.0.2.1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/health", nil)
			req.RemoteAddr = tc.remoteAddr
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := GetClientIP(req); got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, got)
			}
		})
	}
}
