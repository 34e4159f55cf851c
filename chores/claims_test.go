// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package chores

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/danielhkuo/chorewheel/auth"
	"github.com/danielhkuo/chorewheel/calendar"
	"github.com/danielhkuo/chorewheel/cliparse"
	"github.com/danielhkuo/chorewheel/hearts"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/polls"
	"github.com/danielhkuo/chorewheel/testutil"
)

// setupValuedHouse emits half a month of points, 50 per chore, at june16.
func setupValuedHouse(t *testing.T) (*sql.DB, *Service, *polls.Service) {
	t.Helper()

	conn, svc, pollService := setupHouse(t)
	setWatermark(t, conn, june1)
	if _, err := svc.UpdateChoreValues(context.Background(), "H1", june16); err != nil {
		t.Fatalf("UpdateChoreValues: %v", err)
	}
	return conn, svc, pollService
}

func vote(t *testing.T, pollService *polls.Service, pollID string, at time.Time, residents ...string) {
	t.Helper()

	for _, r := range residents {
		if err := pollService.SubmitVote(context.Background(), pollID, r, at, models.VoteYay); err != nil {
			t.Fatalf("SubmitVote(%s): %v", r, err)
		}
	}
}

func points(t *testing.T, conn *sql.DB, residentID string, end time.Time) float64 {
	t.Helper()

	p, err := GetAllChorePoints(context.Background(), conn, residentID, calendar.MonthStart(end), end)
	if err != nil {
		t.Fatalf("GetAllChorePoints: %v", err)
	}
	return p
}

func TestClaimChoreLifecycle(t *testing.T) {
	conn, svc, pollService := setupValuedHouse(t)
	ctx := context.Background()

	claim, poll, err := svc.ClaimChore(ctx, "H1", "alpha", "R1", june16, 30)
	if err != nil {
		t.Fatalf("ClaimChore: %v", err)
	}
	assertClose(t, "claim value", claim.Value, 50)
	if poll.MinVotes != 2 || !poll.EndTime.Equal(june16.Add(24*time.Hour)) {
		t.Errorf("Unexpected poll: %+v", poll)
	}

	// The pending claim holds the value
	assertClose(t, "pending value", currentValue(t, conn, "alpha", june16), 0)
	if _, _, err := svc.ClaimChore(ctx, "H1", "alpha", "R2", june16, 0); !errors.Is(err, models.ErrZeroValueClaim) {
		t.Errorf("Expected ErrZeroValueClaim, got %v", err)
	}

	if _, _, err := svc.ResolveChoreClaim(ctx, claim.ID, june16.Add(time.Hour)); !errors.Is(err, models.ErrPollNotClosed) {
		t.Errorf("Expected ErrPollNotClosed, got %v", err)
	}
	early, err := svc.ResolveChoreClaims(ctx, "H1", june16.Add(time.Hour))
	if err != nil || len(early) != 0 {
		t.Fatalf("Expected nothing to resolve, got %v, %v", early, err)
	}

	vote(t, pollService, poll.ID, june16.Add(time.Minute), "R1", "R2")

	resolveAt := june16.Add(25 * time.Hour)
	resolved, err := svc.ResolveChoreClaims(ctx, "H1", resolveAt)
	if err != nil {
		t.Fatalf("ResolveChoreClaims: %v", err)
	}
	if len(resolved) != 1 || resolved[0].Valid == nil || !*resolved[0].Valid {
		t.Fatalf("Expected one valid claim, got %+v", resolved)
	}
	assertClose(t, "resolved value", resolved[0].Value, 50)
	assertClose(t, "R1 points", points(t, conn, "R1", resolveAt), 50)

	// Resolving twice is a no-op
	again, err := svc.ResolveChoreClaims(ctx, "H1", resolveAt)
	if err != nil || len(again) != 0 {
		t.Errorf("Expected nothing to resolve, got %v, %v", again, err)
	}
	if _, ok, err := svc.ResolveChoreClaim(ctx, claim.ID, resolveAt); err != nil || ok {
		t.Errorf("Expected a silent no-op, got %v, %v", ok, err)
	}
	assertClose(t, "R1 points", points(t, conn, "R1", resolveAt), 50)
}

func TestRejectedClaimRestoresValue(t *testing.T) {
	conn, svc, _ := setupValuedHouse(t)
	ctx := context.Background()

	claim, _, err := svc.ClaimChore(ctx, "H1", "beta", "R1", june16, 0)
	if err != nil {
		t.Fatalf("ClaimChore: %v", err)
	}

	resolveAt := june16.Add(25 * time.Hour)
	got, ok, err := svc.ResolveChoreClaim(ctx, claim.ID, resolveAt)
	if err != nil || !ok {
		t.Fatalf("ResolveChoreClaim: %v, %v", ok, err)
	}
	if got.Valid == nil || *got.Valid {
		t.Errorf("Expected the claim to be rejected, got %+v", got)
	}
	assertClose(t, "restored value", currentValue(t, conn, "beta", resolveAt), 50)
	assertClose(t, "R1 points", points(t, conn, "R1", resolveAt), 0)
}

func TestClaimChoreErrors(t *testing.T) {
	conn, svc, _ := setupValuedHouse(t)
	ctx := context.Background()
	testutil.CreateTestHouse(t, conn, "H2")
	testutil.CreateTestChore(t, conn, "H2", "other", "other")

	tests := []struct {
		name     string
		chore    string
		resident string
		wantErr  error
	}{
		{"unknown chore", "delta", "R1", models.ErrChoreNotFound},
		{"other house", "other", "R1", models.ErrChoreNotFound},
		{"non-voter", "alpha", "R9", models.ErrInvalidVoter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.ClaimChore(ctx, "H1", tt.chore, tt.resident, june16, 0)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
	if n := testutil.CountRows(t, conn, "poll", ""); n != 0 {
		t.Errorf("Expected no polls after failed claims, got %d", n)
	}
	if n := testutil.CountRows(t, conn, "poll_vote", ""); n != 0 {
		t.Errorf("Expected no votes after failed claims, got %d", n)
	}
}

func TestClaimChoreCastsClaimantYay(t *testing.T) {
	conn, svc, pollService := setupValuedHouse(t)
	ctx := context.Background()

	claim, poll, err := svc.ClaimChore(ctx, "H1", "alpha", "R1", june16, 0)
	if err != nil {
		t.Fatalf("ClaimChore: %v", err)
	}
	counts, err := pollService.ResultCounts(ctx, conn, poll.ID)
	if err != nil {
		t.Fatalf("ResultCounts: %v", err)
	}
	if counts.Yays != 1 || counts.Nays != 0 {
		t.Errorf("Expected the claimant's yay, got %+v", counts)
	}
	if n := testutil.CountRows(t, conn, "chore_claim", "id = $1", claim.ID); n != 1 {
		t.Errorf("Expected the claim to be stored, got %d rows", n)
	}

	// One more yay reaches the quorum of two
	vote(t, pollService, poll.ID, june16.Add(time.Minute), "R2")
	got, ok, err := svc.ResolveChoreClaim(ctx, claim.ID, poll.EndTime)
	if err != nil || !ok {
		t.Fatalf("ResolveChoreClaim: %v, %v", ok, err)
	}
	if got.Valid == nil || !*got.Valid {
		t.Errorf("Expected a valid claim, got %+v", got)
	}
}

func TestClaimChoreClosesEarlyForSoleResident(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	testutil.CreateTestHouse(t, conn, "H1")
	testutil.CreateTestResident(t, conn, "H1", "R1", joined)
	testutil.CreateTestChore(t, conn, "H1", "alpha", "alpha")
	pollService := polls.NewService(conn, "salt", true)
	svc := NewService(conn, pollService, cliparse.DefaultEconomy())
	ctx := context.Background()

	if _, err := svc.UpdateChoreValues(ctx, "H1", june16); err != nil {
		t.Fatalf("UpdateChoreValues: %v", err)
	}
	_, poll, err := svc.ClaimChore(ctx, "H1", "alpha", "R1", june16, 0)
	if err != nil {
		t.Fatalf("ClaimChore: %v", err)
	}
	if !poll.EndTime.Equal(june16) {
		t.Errorf("Expected the poll to close at %v, got %v", june16, poll.EndTime)
	}
	stored, err := pollService.Get(ctx, conn, poll.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.EndTime.Equal(poll.EndTime) {
		t.Errorf("Expected the stored end time %v, got %v", poll.EndTime, stored.EndTime)
	}
}

func TestSmallClaimNeedsOneVote(t *testing.T) {
	conn, svc, _ := setupHouse(t)
	ctx := context.Background()
	// Five hours: 3 * 100 * 5/720 split three ways, under the threshold
	setWatermark(t, conn, june16.Add(-5*time.Hour))
	if _, err := svc.UpdateChoreValues(ctx, "H1", june16); err != nil {
		t.Fatalf("UpdateChoreValues: %v", err)
	}

	_, poll, err := svc.ClaimChore(ctx, "H1", "gamma", "R3", june16, 0)
	if err != nil {
		t.Fatalf("ClaimChore: %v", err)
	}
	if poll.MinVotes != 1 {
		t.Errorf("Expected 1 required vote, got %d", poll.MinVotes)
	}
}

func TestGiftChorePoints(t *testing.T) {
	conn, svc, pollService := setupValuedHouse(t)
	ctx := context.Background()

	if _, err := svc.GiftChorePoints(ctx, "H1", "R1", "R2", 10, june16); !errors.Is(err, models.ErrInsufficientBalanceForGift) {
		t.Fatalf("Expected ErrInsufficientBalanceForGift, got %v", err)
	}
	if _, err := svc.GiftChorePoints(ctx, "H1", "R1", "R2", 0, june16); !errors.Is(err, models.ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue, got %v", err)
	}

	claim, poll, err := svc.ClaimChore(ctx, "H1", "alpha", "R1", june16, 0)
	if err != nil {
		t.Fatalf("ClaimChore: %v", err)
	}
	vote(t, pollService, poll.ID, june16.Add(time.Minute), "R1", "R2")
	if _, _, err := svc.ResolveChoreClaim(ctx, claim.ID, june16.Add(25*time.Hour)); err != nil {
		t.Fatalf("ResolveChoreClaim: %v", err)
	}

	giftAt := june16.Add(48 * time.Hour)
	transfers, err := svc.GiftChorePoints(ctx, "H1", "R1", "R2", 10, giftAt)
	if err != nil {
		t.Fatalf("GiftChorePoints: %v", err)
	}
	if len(transfers) != 2 || transfers[0].ChoreID != nil {
		t.Errorf("Expected two chore-less transfers, got %+v", transfers)
	}
	assertClose(t, "R1 points", points(t, conn, "R1", giftAt), 40)
	assertClose(t, "R2 points", points(t, conn, "R2", giftAt), 10)

	history, err := GetChoreClaims(ctx, conn, "R1", june1, giftAt)
	if err != nil {
		t.Fatalf("GetChoreClaims: %v", err)
	}
	if len(history) != 2 || history[0].ChoreID == nil || history[1].Value != -10 {
		t.Errorf("Expected the claim then the debit, got %+v", history)
	}

	if _, err := svc.GiftChorePoints(ctx, "H1", "R1", "R9", 1, giftAt); !errors.Is(err, models.ErrInvalidVoter) {
		t.Errorf("Expected ErrInvalidVoter, got %v", err)
	}
}

func TestChorePenalties(t *testing.T) {
	conn, svc, _ := setupHouse(t)
	ctx := context.Background()
	testutil.CreateTestHeart(t, conn, "H1", "R1", "regen", joined, 5)
	testutil.CreateTestHeart(t, conn, "H1", "R2", "regen", joined, 5)

	valid := true
	alpha := "alpha"
	for resident, value := range map[string]float64{"R1": 50, "R2": 100} {
		err := insertClaim(ctx, conn, models.ChoreClaim{
			ID: auth.NewID(), HouseID: "H1", ChoreID: &alpha, ClaimedBy: &resident,
			ClaimedAt: june16, Value: value, ResolvedAt: &june16, Valid: &valid,
		})
		if err != nil {
			t.Fatalf("insertClaim: %v", err)
		}
	}

	// 30 hours into July
	penaltyTime := time.Date(2024, 7, 2, 6, 0, 0, 0, time.UTC)
	early, err := svc.AddChorePenalties(ctx, "H1", penaltyTime.Add(-time.Hour))
	if err != nil || len(early) != 0 {
		t.Fatalf("Expected no penalties before the delay, got %v, %v", early, err)
	}

	penalties, err := svc.AddChorePenalties(ctx, "H1", penaltyTime)
	if err != nil {
		t.Fatalf("AddChorePenalties: %v", err)
	}
	// R3 never received hearts and is skipped
	if len(penalties) != 2 {
		t.Fatalf("Expected penalties for R1 and R2, got %+v", penalties)
	}
	byResident := map[string]models.Heart{}
	for _, p := range penalties {
		byResident[p.ResidentID] = p
		if p.Kind != models.HeartPenalty || !p.GeneratedAt.Equal(penaltyTime) {
			t.Errorf("Unexpected penalty heart: %+v", p)
		}
	}
	assertClose(t, "R1 penalty", byResident["R1"].Value, -5)
	// R2 met the obligation and earns half a heart back
	assertClose(t, "R2 reward", byResident["R2"].Value, 0.5)

	again, err := svc.AddChorePenalty(ctx, "H1", "R1", penaltyTime.Add(time.Hour))
	if err != nil || len(again) != 0 {
		t.Errorf("Expected the penalty to be written once, got %v, %v", again, err)
	}
	balance, _, err := hearts.Balance(ctx, conn, "R1", penaltyTime)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	assertClose(t, "R1 hearts", balance, 0)
	balance, _, err = hearts.Balance(ctx, conn, "R2", penaltyTime)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	assertClose(t, "R2 hearts", balance, 5.5)

	amount, err := svc.CalculatePenalty(ctx, conn, "R3", penaltyTime)
	if err != nil {
		t.Fatalf("CalculatePenalty: %v", err)
	}
	assertClose(t, "R3 penalty", amount, 10)
}

func TestCalculatePenaltySteps(t *testing.T) {
	conn, svc, _ := setupHouse(t)
	ctx := context.Background()
	penaltyTime := time.Date(2024, 7, 2, 6, 0, 0, 0, time.UTC)

	tests := []struct {
		resident string
		earned   float64
		want     float64
	}{
		{"R1", 100, -0.5},
		{"R2", 97, 0},
		{"R3", 94, 0.5},
	}
	valid := true
	alpha := "alpha"
	for _, tt := range tests {
		resident := tt.resident
		err := insertClaim(ctx, conn, models.ChoreClaim{
			ID: auth.NewID(), HouseID: "H1", ChoreID: &alpha, ClaimedBy: &resident,
			ClaimedAt: june16, Value: tt.earned, ResolvedAt: &june16, Valid: &valid,
		})
		if err != nil {
			t.Fatalf("insertClaim: %v", err)
		}
		got, err := svc.CalculatePenalty(ctx, conn, tt.resident, penaltyTime)
		if err != nil {
			t.Fatalf("CalculatePenalty(%s): %v", tt.resident, err)
		}
		assertClose(t, tt.resident, got, tt.want)
	}
}

func TestChoreStats(t *testing.T) {
	conn, svc, _ := setupHouse(t)
	ctx := context.Background()

	valid := true
	alpha := "alpha"
	r2 := "R2"
	err := insertClaim(ctx, conn, models.ChoreClaim{
		ID: auth.NewID(), HouseID: "H1", ChoreID: &alpha, ClaimedBy: &r2,
		ClaimedAt: june16, Value: 120, ResolvedAt: &june16, Valid: &valid,
	})
	if err != nil {
		t.Fatalf("insertClaim: %v", err)
	}

	stats, err := svc.GetHouseChoreStats(ctx, "H1", june1, calendar.MonthEnd(june1))
	if err != nil {
		t.Fatalf("GetHouseChoreStats: %v", err)
	}
	if len(stats) != 3 || stats[0].ResidentID != "R2" {
		t.Fatalf("Expected R2 first of 3, got %+v", stats)
	}
	assertClose(t, "R2 completion", stats[0].CompletionPct, 1.2)
	assertClose(t, "R1 owed", stats[1].PointsOwed, 100)

	reward, err := svc.CalculatePenalty(ctx, conn, "R2", time.Date(2024, 7, 2, 6, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("CalculatePenalty: %v", err)
	}
	assertClose(t, "R2 penalty", reward, -0.5)
}

func TestChoreProposals(t *testing.T) {
	conn, svc, pollService := setupHouse(t)
	ctx := context.Background()

	add, addPoll, err := svc.CreateChoreProposal(ctx, "H1", "R1", nil, "dishes", map[string]any{"description": "sink"}, true, june16)
	if err != nil {
		t.Fatalf("CreateChoreProposal: %v", err)
	}
	if addPoll.MinVotes != 2 || !addPoll.EndTime.Equal(june16.Add(48*time.Hour)) {
		t.Errorf("Unexpected poll: %+v", addPoll)
	}
	alpha := "alpha"
	remove, removePoll, err := svc.CreateChoreProposal(ctx, "H1", "R2", &alpha, "", nil, false, june16)
	if err != nil {
		t.Fatalf("CreateChoreProposal: %v", err)
	}
	_, failedPoll, err := svc.CreateChoreProposal(ctx, "H1", "R3", nil, "mop", nil, true, june16)
	if err != nil {
		t.Fatalf("CreateChoreProposal: %v", err)
	}

	counts, err := pollService.ResultCounts(ctx, conn, addPoll.ID)
	if err != nil || counts.Yays != 1 {
		t.Errorf("Expected the proposer's yay, got %+v, %v", counts, err)
	}

	vote(t, pollService, addPoll.ID, june16.Add(time.Minute), "R1", "R2")
	vote(t, pollService, removePoll.ID, june16.Add(time.Minute), "R2", "R3")
	vote(t, pollService, failedPoll.ID, june16.Add(time.Minute), "R3")

	if _, err := svc.ResolveChoreProposal(ctx, add.ID, june16.Add(24*time.Hour)); !errors.Is(err, models.ErrPollNotClosed) {
		t.Errorf("Expected ErrPollNotClosed, got %v", err)
	}

	resolveAt := june16.Add(49 * time.Hour)
	resolved, err := svc.ResolveChoreProposals(ctx, "H1", resolveAt)
	if err != nil {
		t.Fatalf("ResolveChoreProposals: %v", err)
	}
	if len(resolved) != 3 {
		t.Fatalf("Expected 3 resolved proposals, got %d", len(resolved))
	}

	chores, err := GetChores(ctx, conn, "H1")
	if err != nil {
		t.Fatalf("GetChores: %v", err)
	}
	var names []string
	for _, c := range chores {
		names = append(names, c.Name)
	}
	want := []string{"beta", "dishes", "gamma"}
	if len(names) != len(want) {
		t.Fatalf("Expected chores %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Expected chores %v, got %v", want, names)
			break
		}
	}

	// The edit kept alpha's name
	removed, err := GetChore(ctx, conn, "alpha")
	if err != nil {
		t.Fatalf("GetChore: %v", err)
	}
	if removed.Name != "alpha" || removed.Active {
		t.Errorf("Expected alpha to be deactivated, got %+v", removed)
	}

	if _, err := svc.ResolveChoreProposal(ctx, remove.ID, resolveAt); !errors.Is(err, models.ErrProposalAlreadyResolved) {
		t.Errorf("Expected ErrProposalAlreadyResolved, got %v", err)
	}
	again, err := svc.ResolveChoreProposals(ctx, "H1", resolveAt)
	if err != nil || len(again) != 0 {
		t.Errorf("Expected nothing to resolve, got %v, %v", again, err)
	}
}

func TestCreateChoreProposalErrors(t *testing.T) {
	_, svc, _ := setupHouse(t)
	ctx := context.Background()
	missing := "delta"

	tests := []struct {
		name      string
		resident  string
		choreID   *string
		choreName string
		wantErr   error
	}{
		{"empty", "R1", nil, "", models.ErrInvalidProposal},
		{"unknown chore", "R1", &missing, "", models.ErrChoreNotFound},
		{"non-voter", "R9", nil, "mop", models.ErrInvalidVoter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.CreateChoreProposal(ctx, "H1", tt.resident, tt.choreID, tt.choreName, nil, true, june16)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := GetChoreProposal(ctx, svc.db, "missing"); !errors.Is(err, models.ErrProposalNotFound) {
		t.Errorf("Expected ErrProposalNotFound, got %v", err)
	}
}
