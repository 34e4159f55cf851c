// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

Wrap handlers with request logging:

	mux.HandleFunc("GET /health", middleware.WithLogging(handler))

Logs request start (method, path, remote) and completion (status,
duration_ms), and observes the request latency histogram.

# House Keys

Every house route requires the key returned when the house was created:

	mux.HandleFunc("GET /houses/{house}/hearts",
		middleware.RequireHouseKey(cfg.HouseKeySalt, heartHandler.GetHearts))

Routes without a {house} path value check the key themselves with
ValidHouseKey once they know the house.

# CORS Middleware

Enable cross-origin requests for frontend access:

	server := http.Server{
		Handler: middleware.CORS(mux),
	}

# JSON Helpers

Write JSON responses:

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")
	middleware.DomainError(w, err)

DomainError maps the sentinel errors in package models to 4xx statuses and
logs anything else as a 500.

Parse JSON request bodies:

	var req models.AddChoreRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

Trigger routes accept an empty body through ParseOptionalJSONBody.
*/
package middleware
