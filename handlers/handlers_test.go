// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielhkuo/chorewheel/auth"
	"github.com/danielhkuo/chorewheel/cliparse"
	"github.com/danielhkuo/chorewheel/middleware"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/testutil"
)

var moveIn = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func at(t time.Time) models.TriggerRequest {
	return models.TriggerRequest{Now: &t}
}

// setupHouse creates house H1 through the API and activates R1..R3
func setupHouse(t *testing.T) (*sql.DB, cliparse.Config, string) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()

	req := testutil.MakeRequest("POST", "/houses", models.AddHouseRequest{HouseID: "H1"}, nil)
	w := httptest.NewRecorder()
	NewHouseHandler(db, cfg).AddHouse(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("AddHouse failed: %d - %s", w.Code, w.Body.String())
	}
	var resp models.AddHouseResponse
	testutil.AssertJSON(t, w, &resp)

	for _, id := range []string{"R1", "R2", "R3"} {
		w := activate(t, db, cfg, resp.HouseKey, "H1", id, moveIn)
		if w.Code != http.StatusOK {
			t.Fatalf("activate %s failed: %d - %s", id, w.Code, w.Body.String())
		}
	}
	return db, cfg, resp.HouseKey
}

func activate(t *testing.T, db *sql.DB, cfg cliparse.Config, key, houseID, residentID string, now time.Time) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.MakeRequest("POST", "/houses/"+houseID+"/residents/"+residentID+"/activate",
		at(now), map[string]string{middleware.HouseKeyHeader: key})
	req.SetPathValue("house", houseID)
	req.SetPathValue("resident", residentID)
	w := httptest.NewRecorder()
	NewHouseHandler(db, cfg).ActivateResident(w, req)
	return w
}

func houseRequest(method, path string, body interface{}, key string) *http.Request {
	req := testutil.MakeRequest(method, path, body, map[string]string{middleware.HouseKeyHeader: key})
	req.SetPathValue("house", "H1")
	return req
}

func vote(t *testing.T, db *sql.DB, cfg cliparse.Config, key, pollID, residentID string, now time.Time) models.PollResponse {
	t.Helper()
	req := testutil.MakeRequest("POST", "/polls/"+pollID+"/votes", models.SubmitVoteRequest{
		TriggerRequest: at(now),
		ResidentID:     residentID,
		Vote:           models.VoteYay,
	}, map[string]string{middleware.HouseKeyHeader: key})
	req.SetPathValue("poll", pollID)
	w := httptest.NewRecorder()
	NewPollHandler(db, cfg).SubmitVote(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("vote by %s failed: %d - %s", residentID, w.Code, w.Body.String())
	}
	var resp models.PollResponse
	testutil.AssertJSON(t, w, &resp)
	return resp
}

func TestAddHouse(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewHouseHandler(db, cfg)

	t.Run("generated id", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/houses", nil)
		w := httptest.NewRecorder()
		handler.AddHouse(w, req)

		testutil.AssertStatus(t, w, http.StatusCreated)
		var resp models.AddHouseResponse
		testutil.AssertJSON(t, w, &resp)
		if resp.HouseID == "" {
			t.Fatal("expected a generated house id")
		}
		if err := auth.ValidateHouseKey(resp.HouseID, resp.HouseKey, cfg.HouseKeySalt); err != nil {
			t.Errorf("house key does not validate: %v", err)
		}
	})

	t.Run("existing id", func(t *testing.T) {
		keys := map[string]bool{}
		for i := 0; i < 2; i++ {
			req := testutil.MakeRequest("POST", "/houses", models.AddHouseRequest{HouseID: "H9"}, nil)
			w := httptest.NewRecorder()
			handler.AddHouse(w, req)
			testutil.AssertStatus(t, w, http.StatusCreated)

			var resp models.AddHouseResponse
			testutil.AssertJSON(t, w, &resp)
			keys[resp.HouseKey] = true
		}
		if len(keys) != 1 {
			t.Errorf("expected the same key for the same house, got %d keys", len(keys))
		}
		if n := testutil.CountRows(t, db, "house", "id = $1", "H9"); n != 1 {
			t.Errorf("expected 1 house row, got %d", n)
		}
	})
}

func TestActivateResident(t *testing.T) {
	db, cfg, key := setupHouse(t)

	req := houseRequest("GET", "/houses/H1/residents/R1/hearts", nil, key)
	req.SetPathValue("resident", "R1")
	w := httptest.NewRecorder()
	NewHeartHandler(db, cfg).GetResidentHearts(w, req)

	testutil.AssertStatus(t, w, http.StatusOK)
	var resp models.HeartEntriesResponse
	testutil.AssertJSON(t, w, &resp)
	if resp.Hearts != cfg.Economy.HeartsBaseline {
		t.Errorf("expected %v hearts, got %v", cfg.Economy.HeartsBaseline, resp.Hearts)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Kind != models.HeartRegen {
		t.Errorf("expected one regen entry, got %+v", resp.Entries)
	}

	// Activating again does not credit the baseline twice
	w = activate(t, db, cfg, key, "H1", "R1", moveIn.Add(time.Hour))
	testutil.AssertStatus(t, w, http.StatusOK)
	if n := testutil.CountRows(t, db, "heart", "resident_id = $1", "R1"); n != 1 {
		t.Errorf("expected 1 heart entry, got %d", n)
	}
}

func TestActivateResidentOtherHouse(t *testing.T) {
	db, cfg, _ := setupHouse(t)
	testutil.CreateTestHouse(t, db, "H2")

	w := activate(t, db, cfg, auth.GenerateHouseKey("H2", cfg.HouseKeySalt), "H2", "R1", moveIn)
	testutil.AssertStatus(t, w, http.StatusConflict)
}

func TestUnknownHouse(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()

	req := testutil.MakeRequest("GET", "/houses/nope/chores", nil, nil)
	req.SetPathValue("house", "nope")
	w := httptest.NewRecorder()
	NewChoreHandler(db, cfg).GetChores(w, req)

	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestClaimWorkflow(t *testing.T) {
	db, cfg, key := setupHouse(t)
	choreHandler := NewChoreHandler(db, cfg)
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	// Step 1: Add two chores
	choreIDs := map[string]string{}
	for _, name := range []string{"dishes", "trash"} {
		w := httptest.NewRecorder()
		choreHandler.AddChore(w, houseRequest("POST", "/houses/H1/chores", models.AddChoreRequest{Name: name}, key))
		if w.Code != http.StatusCreated {
			t.Fatalf("Step 1 - AddChore %s failed: %d - %s", name, w.Code, w.Body.String())
		}
		var chore models.Chore
		testutil.AssertJSON(t, w, &chore)
		choreIDs[name] = chore.ID
	}

	// Step 2: Accrue value. The first run covers the bootstrap window.
	w := httptest.NewRecorder()
	choreHandler.UpdateValues(w, houseRequest("POST", "/houses/H1/chores/values", at(now), key))
	if w.Code != http.StatusOK {
		t.Fatalf("Step 2 - UpdateValues failed: %d - %s", w.Code, w.Body.String())
	}
	var values models.ChoreValuesResponse
	testutil.AssertJSON(t, w, &values)
	if len(values.ChoreValues) != 2 {
		t.Fatalf("Step 2 - expected 2 values, got %d", len(values.ChoreValues))
	}
	hours := cfg.Economy.BootstrapDuration.Hours()
	want := 3 * cfg.Economy.PointsPerResident * hours / (31 * 24) / 2
	var dishes float64
	for _, v := range values.ChoreValues {
		if math.Abs(v.Value-want) > 1e-6 {
			t.Errorf("Step 2 - %s: expected %.4f, got %.4f", v.Name, want, v.Value)
		}
		if v.ChoreID == choreIDs["dishes"] {
			dishes = v.Value
		}
	}

	// Step 3: Claim dishes. The claimant's yay is recorded.
	req := houseRequest("POST", "/houses/H1/chores/"+choreIDs["dishes"]+"/claims",
		models.ClaimChoreRequest{TriggerRequest: at(now), ResidentID: "R1", TimeSpent: 20}, key)
	req.SetPathValue("chore", choreIDs["dishes"])
	w = httptest.NewRecorder()
	choreHandler.ClaimChore(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("Step 3 - ClaimChore failed: %d - %s", w.Code, w.Body.String())
	}
	var claim models.ClaimChoreResponse
	testutil.AssertJSON(t, w, &claim)
	if math.Abs(claim.Claim.Value-dishes) > 1e-6 {
		t.Errorf("Step 3 - expected claim of %.4f, got %.4f", dishes, claim.Claim.Value)
	}
	if claim.Poll.MinVotes != cfg.Economy.ChoresMinVotes {
		t.Errorf("Step 3 - expected %d min votes, got %d", cfg.Economy.ChoresMinVotes, claim.Poll.MinVotes)
	}

	// Step 4: A second resident confirms
	poll := vote(t, db, cfg, key, claim.Poll.ID, "R2", now.Add(time.Hour))
	if poll.Counts.Yays != 2 || poll.Counts.Nays != 0 {
		t.Errorf("Step 4 - expected 2 yays, got %+v", poll.Counts)
	}

	// Step 5: Resolving before the poll closes does nothing
	economy := NewEconomyHandler(db, cfg)
	w = httptest.NewRecorder()
	economy.Resolve(w, houseRequest("POST", "/houses/H1/resolve", at(now.Add(2*time.Hour)), key))
	testutil.AssertStatus(t, w, http.StatusOK)
	var resolved models.ResolveResponse
	testutil.AssertJSON(t, w, &resolved)
	if len(resolved.Claims) != 0 {
		t.Fatalf("Step 5 - expected no resolved claims, got %d", len(resolved.Claims))
	}

	// Step 6: Resolve after the poll closes
	after := now.Add(cfg.Economy.ChoresPollLength + time.Minute)
	w = httptest.NewRecorder()
	economy.Resolve(w, houseRequest("POST", "/houses/H1/resolve", at(after), key))
	testutil.AssertStatus(t, w, http.StatusOK)
	resolved = models.ResolveResponse{}
	testutil.AssertJSON(t, w, &resolved)
	if len(resolved.Claims) != 1 {
		t.Fatalf("Step 6 - expected 1 resolved claim, got %d", len(resolved.Claims))
	}
	if c := resolved.Claims[0]; c.Valid == nil || !*c.Valid {
		t.Errorf("Step 6 - expected a valid claim, got %+v", c)
	}

	// Step 7: A second resolve is a no-op
	w = httptest.NewRecorder()
	economy.Resolve(w, houseRequest("POST", "/houses/H1/resolve", at(after), key))
	resolved = models.ResolveResponse{}
	testutil.AssertJSON(t, w, &resolved)
	if len(resolved.Claims) != 0 {
		t.Errorf("Step 7 - expected no claims on second resolve, got %d", len(resolved.Claims))
	}

	// Step 8: Stats credit R1 with the claim
	req = houseRequest("GET", "/houses/H1/chores/stats?end="+after.Format(time.RFC3339), nil, key)
	w = httptest.NewRecorder()
	choreHandler.GetStats(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)
	var stats models.ChoreStatsResponse
	testutil.AssertJSON(t, w, &stats)
	if len(stats.Stats) != 3 {
		t.Fatalf("Step 8 - expected stats for 3 residents, got %d", len(stats.Stats))
	}
	if stats.Stats[0].ResidentID != "R1" || math.Abs(stats.Stats[0].PointsEarned-dishes) > 1e-6 {
		t.Errorf("Step 8 - expected R1 first with %.4f points, got %+v", dishes, stats.Stats[0])
	}
}

func TestChallengeWorkflow(t *testing.T) {
	db, cfg, key := setupHouse(t)
	heartHandler := NewHeartHandler(db, cfg)
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	req := houseRequest("POST", "/houses/H1/hearts/challenges", models.IssueChallengeRequest{
		TriggerRequest: at(now),
		ResidentID:     "R1",
		ChallengeeID:   "R3",
		Value:          1,
		Circumstance:   "left the stove on",
	}, key)
	w := httptest.NewRecorder()
	heartHandler.IssueChallenge(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("IssueChallenge failed: %d - %s", w.Code, w.Body.String())
	}
	var challenge models.ChallengeResponse
	testutil.AssertJSON(t, w, &challenge)

	// A second open challenge against the same resident is refused
	w = httptest.NewRecorder()
	heartHandler.IssueChallenge(w, houseRequest("POST", "/houses/H1/hearts/challenges", models.IssueChallengeRequest{
		TriggerRequest: at(now),
		ResidentID:     "R2",
		ChallengeeID:   "R3",
		Value:          1,
	}, key))
	testutil.AssertStatus(t, w, http.StatusConflict)

	vote(t, db, cfg, key, challenge.Poll.ID, "R2", now.Add(time.Hour))

	after := now.Add(cfg.Economy.HeartsPollLength + time.Minute)
	w = httptest.NewRecorder()
	NewEconomyHandler(db, cfg).Resolve(w, houseRequest("POST", "/houses/H1/resolve", at(after), key))
	testutil.AssertStatus(t, w, http.StatusOK)
	var resolved models.ResolveResponse
	testutil.AssertJSON(t, w, &resolved)
	if len(resolved.Challenges) != 1 {
		t.Fatalf("expected 1 resolved challenge, got %d", len(resolved.Challenges))
	}

	req = houseRequest("GET", "/houses/H1/hearts?now="+after.Format(time.RFC3339), nil, key)
	w = httptest.NewRecorder()
	heartHandler.GetHearts(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)
	var balances models.HeartsResponse
	testutil.AssertJSON(t, w, &balances)

	want := map[string]float64{"R1": 5, "R2": 5, "R3": 4}
	for _, b := range balances.Hearts {
		if b.Hearts != want[b.ResidentID] {
			t.Errorf("%s: expected %v hearts, got %v", b.ResidentID, want[b.ResidentID], b.Hearts)
		}
	}
}

func TestPollRequiresHouseKey(t *testing.T) {
	db, cfg, key := setupHouse(t)
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	w := httptest.NewRecorder()
	NewHeartHandler(db, cfg).IssueChallenge(w, houseRequest("POST", "/houses/H1/hearts/challenges", models.IssueChallengeRequest{
		TriggerRequest: at(now),
		ResidentID:     "R1",
		ChallengeeID:   "R2",
		Value:          1,
	}, key))
	if w.Code != http.StatusCreated {
		t.Fatalf("IssueChallenge failed: %d - %s", w.Code, w.Body.String())
	}
	var challenge models.ChallengeResponse
	testutil.AssertJSON(t, w, &challenge)

	testCases := []struct {
		name     string
		key      string
		expected int
	}{
		{"own house", key, http.StatusOK},
		{"other house", auth.GenerateHouseKey("H2", cfg.HouseKeySalt), http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/polls/"+challenge.Poll.ID, nil)
			req.Header.Set(middleware.HouseKeyHeader, tc.key)
			req.SetPathValue("poll", challenge.Poll.ID)
			w := httptest.NewRecorder()
			NewPollHandler(db, cfg).GetPoll(w, req)
			testutil.AssertStatus(t, w, tc.expected)
		})
	}
}

func TestSubmitVoteValidation(t *testing.T) {
	db, cfg, key := setupHouse(t)

	req := testutil.MakeRequest("POST", "/polls/missing/votes", models.SubmitVoteRequest{
		ResidentID: "R1",
		Vote:       models.VoteYay,
	}, map[string]string{middleware.HouseKeyHeader: key})
	req.SetPathValue("poll", "missing")
	w := httptest.NewRecorder()
	NewPollHandler(db, cfg).SubmitVote(w, req)

	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestGiveKarma(t *testing.T) {
	db, cfg, key := setupHouse(t)
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	w := httptest.NewRecorder()
	NewHeartHandler(db, cfg).GiveKarma(w, houseRequest("POST", "/houses/H1/hearts/karma", models.GiveKarmaRequest{
		TriggerRequest: at(now),
		ResidentID:     "R1",
		Text:           "thanks <@R2>++ and <@R3>++, also <@R1>++",
	}, key))

	testutil.AssertStatus(t, w, http.StatusCreated)
	var resp models.KarmaResponse
	testutil.AssertJSON(t, w, &resp)
	if len(resp.Karma) != 2 {
		t.Fatalf("expected karma for 2 residents, got %+v", resp.Karma)
	}
	for _, k := range resp.Karma {
		if k.ReceiverID == "R1" {
			t.Error("giver should not receive their own karma")
		}
	}
}

func TestBreaks(t *testing.T) {
	db, cfg, key := setupHouse(t)
	handler := NewChoreHandler(db, cfg)
	start := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	w := httptest.NewRecorder()
	handler.AddBreak(w, houseRequest("POST", "/houses/H1/breaks", models.AddChoreBreakRequest{
		ResidentID:   "R2",
		StartDate:    start,
		EndDate:      start.AddDate(0, 0, 7),
		Circumstance: "vacation",
	}, key))
	if w.Code != http.StatusCreated {
		t.Fatalf("AddBreak failed: %d - %s", w.Code, w.Body.String())
	}
	var created models.ChoreBreak
	testutil.AssertJSON(t, w, &created)

	w = httptest.NewRecorder()
	handler.AddBreak(w, houseRequest("POST", "/houses/H1/breaks", models.AddChoreBreakRequest{
		ResidentID: "R2",
		StartDate:  start,
		EndDate:    start,
	}, key))
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	req := houseRequest("GET", "/houses/H1/breaks?now="+start.Add(time.Hour).Format(time.RFC3339), nil, key)
	w = httptest.NewRecorder()
	handler.GetBreaks(w, req)
	var breaks models.ChoreBreaksResponse
	testutil.AssertJSON(t, w, &breaks)
	if len(breaks.Breaks) != 1 || breaks.Breaks[0].ID != created.ID {
		t.Fatalf("expected the new break, got %+v", breaks.Breaks)
	}

	req = houseRequest("DELETE", "/houses/H1/breaks/"+created.ID, nil, key)
	req.SetPathValue("break", created.ID)
	w = httptest.NewRecorder()
	handler.DeleteBreak(w, req)
	testutil.AssertStatus(t, w, http.StatusNoContent)

	if n := testutil.CountRows(t, db, "chore_break", "house_id = $1", "H1"); n != 0 {
		t.Errorf("expected no breaks, got %d", n)
	}
}

func TestMonthly(t *testing.T) {
	db, cfg, key := setupHouse(t)
	economy := NewEconomyHandler(db, cfg)

	// Early June: regeneration is due, karma and penalties are not
	june := time.Date(2024, 6, 1, 1, 0, 0, 0, time.UTC)
	w := httptest.NewRecorder()
	economy.Monthly(w, houseRequest("POST", "/houses/H1/monthly", at(june), key))
	testutil.AssertStatus(t, w, http.StatusOK)
	var resp models.MonthlyResponse
	testutil.AssertJSON(t, w, &resp)
	if len(resp.Regenerated) != 3 {
		t.Errorf("expected 3 regenerated entries, got %d", len(resp.Regenerated))
	}
	if resp.Karma == nil || resp.Penalties == nil {
		t.Error("expected empty lists rather than null")
	}

	// Repeating the trigger writes nothing new
	w = httptest.NewRecorder()
	economy.Monthly(w, houseRequest("POST", "/houses/H1/monthly", at(june.Add(time.Hour)), key))
	resp = models.MonthlyResponse{}
	testutil.AssertJSON(t, w, &resp)
	if len(resp.Regenerated) != 0 {
		t.Errorf("expected no regeneration on repeat, got %d", len(resp.Regenerated))
	}

	// After the penalty delay every resident owes the full month of May
	late := june.Add(cfg.Economy.PenaltyDelay)
	w = httptest.NewRecorder()
	economy.Monthly(w, houseRequest("POST", "/houses/H1/monthly", at(late), key))
	resp = models.MonthlyResponse{}
	testutil.AssertJSON(t, w, &resp)
	if len(resp.Penalties) != 3 {
		t.Fatalf("expected 3 penalties, got %d", len(resp.Penalties))
	}
	for _, p := range resp.Penalties {
		if p.Value >= 0 || p.Kind != models.HeartPenalty {
			t.Errorf("expected a negative penalty entry, got %+v", p)
		}
	}
}

func TestClaimRecordsClaimantVote(t *testing.T) {
	db, cfg, key := setupHouse(t)
	choreHandler := NewChoreHandler(db, cfg)
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	w := httptest.NewRecorder()
	choreHandler.AddChore(w, houseRequest("POST", "/houses/H1/chores", models.AddChoreRequest{Name: "dishes"}, key))
	var chore models.Chore
	testutil.AssertJSON(t, w, &chore)
	w = httptest.NewRecorder()
	choreHandler.UpdateValues(w, houseRequest("POST", "/houses/H1/chores/values", at(now), key))
	testutil.AssertStatus(t, w, http.StatusOK)

	claimAs := func(residentID string) *httptest.ResponseRecorder {
		req := houseRequest("POST", "/houses/H1/chores/"+chore.ID+"/claims",
			models.ClaimChoreRequest{TriggerRequest: at(now), ResidentID: residentID}, key)
		req.SetPathValue("chore", chore.ID)
		w := httptest.NewRecorder()
		choreHandler.ClaimChore(w, req)
		return w
	}

	// A refused claim leaves neither a poll nor a vote behind
	w = claimAs("R9")
	testutil.AssertStatus(t, w, http.StatusForbidden)
	if n := testutil.CountRows(t, db, "poll", ""); n != 0 {
		t.Errorf("expected no polls, got %d", n)
	}
	if n := testutil.CountRows(t, db, "poll_vote", ""); n != 0 {
		t.Errorf("expected no votes, got %d", n)
	}

	w = claimAs("R1")
	testutil.AssertStatus(t, w, http.StatusCreated)
	var claim models.ClaimChoreResponse
	testutil.AssertJSON(t, w, &claim)

	req := houseRequest("GET", "/polls/"+claim.Poll.ID, nil, key)
	req.SetPathValue("poll", claim.Poll.ID)
	w = httptest.NewRecorder()
	NewPollHandler(db, cfg).GetPoll(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)
	var poll models.PollResponse
	testutil.AssertJSON(t, w, &poll)
	if poll.Counts.Yays != 1 || poll.Counts.Nays != 0 {
		t.Errorf("expected the claimant's yay, got %+v", poll.Counts)
	}
}
