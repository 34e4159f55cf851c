// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the chorewheel API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(db, cfg)

# Endpoints

Public:

	GET  /health  - Liveness
	GET  /metrics - Prometheus exposition
	POST /houses  - Create house, returns its key

House routes (require X-House-Key for {house}):

	POST   /houses/{house}/residents/{resident}/activate
	POST   /houses/{house}/residents/{resident}/deactivate
	POST   /houses/{house}/residents/{resident}/exempt
	POST   /houses/{house}/residents/{resident}/unexempt
	GET    /houses/{house}/residents/{resident}/hearts
	GET    /houses/{house}/chores
	POST   /houses/{house}/chores
	PUT    /houses/{house}/chores/preferences
	GET    /houses/{house}/chores/rankings
	POST   /houses/{house}/chores/rankings/preview
	POST   /houses/{house}/chores/values
	GET    /houses/{house}/chores/stats
	POST   /houses/{house}/chores/{chore}/claims
	POST   /houses/{house}/chores/proposals
	GET    /houses/{house}/breaks
	POST   /houses/{house}/breaks
	DELETE /houses/{house}/breaks/{break}
	POST   /houses/{house}/gifts
	GET    /houses/{house}/hearts
	POST   /houses/{house}/hearts/challenges
	POST   /houses/{house}/hearts/karma
	POST   /houses/{house}/resolve
	POST   /houses/{house}/monthly

Polls (require the key of the poll's house):

	GET  /polls/{poll}
	POST /polls/{poll}/votes

/resolve and /monthly are meant for a scheduler. Both are idempotent.
*/
package router
