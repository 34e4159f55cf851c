// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielhkuo/chorewheel/cliparse"
	"github.com/danielhkuo/chorewheel/db"
)

// SetupTestDB creates a fresh in-memory SQLite database with the full schema.
// The single connection keeps the database alive for the whole test.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.Open(context.Background(), db.TypeSQLite, ":memory:", time.Second)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(context.Background(), conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:         3318,
		DatabaseURL:  ":memory:",
		DatabaseType: db.TypeSQLite,
		HouseKeySalt: "test-house-salt",
		VoterSalt:    "test-voter-salt",
		Economy:      cliparse.DefaultEconomy(),
	}
}

// CreateTestHouse inserts a house
func CreateTestHouse(t *testing.T, conn *sql.DB, houseID string) {
	t.Helper()

	_, err := conn.Exec(`INSERT INTO house (id) VALUES ($1)`, houseID)
	if err != nil {
		t.Fatalf("Failed to create test house: %v", err)
	}
}

// CreateTestResident inserts an active resident who can vote from activeAt
func CreateTestResident(t *testing.T, conn *sql.DB, houseID, residentID string, activeAt time.Time) {
	t.Helper()

	_, err := conn.Exec(`
		INSERT INTO resident (id, house_id, active, active_at)
		VALUES ($1, $2, $3, $4)
	`, residentID, houseID, true, db.ToMillis(activeAt))
	if err != nil {
		t.Fatalf("Failed to create test resident: %v", err)
	}
}

// CreateTestChore inserts an active chore and returns its ID
func CreateTestChore(t *testing.T, conn *sql.DB, houseID, choreID, name string) string {
	t.Helper()

	_, err := conn.Exec(`
		INSERT INTO chore (id, house_id, name, active)
		VALUES ($1, $2, $3, $4)
	`, choreID, houseID, name, true)
	if err != nil {
		t.Fatalf("Failed to create test chore: %v", err)
	}

	return choreID
}

// CreateTestHeart appends a heart entry for a resident
func CreateTestHeart(t *testing.T, conn *sql.DB, houseID, residentID, kind string, generatedAt time.Time, value float64) {
	t.Helper()

	_, err := conn.Exec(`
		INSERT INTO heart (id, house_id, resident_id, kind, generated_at, value)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, residentID+"-"+kind+"-"+generatedAt.Format(time.RFC3339Nano), houseID, residentID, kind, db.ToMillis(generatedAt), value)
	if err != nil {
		t.Fatalf("Failed to create test heart: %v", err)
	}
}

// CountRows returns the number of rows in a table matching a WHERE clause
func CountRows(t *testing.T, conn *sql.DB, table, where string, args ...any) int {
	t.Helper()

	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}

	var count int
	if err := conn.QueryRow(query, args...).Scan(&count); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return count
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
