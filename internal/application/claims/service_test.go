package claims

import (
	"testing"
	"time"

	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
)

func TestClaimService_Claim(t *testing.T) {
	f := newFixture(t)
	f.addIssue(t, "I1", "go")
	coder := f.addAgent(t, "coder-1", domainClaims.AgentCoder, "go")

	claim := f.mustClaim(t, "I1", coder)

	if claim.Status != domainClaims.StatusActive {
		t.Errorf("expected status active, got %s", claim.Status)
	}
	if claim.Claimant.ID != "coder-1" {
		t.Errorf("expected claimant coder-1, got %s", claim.Claimant.ID)
	}
	if !claim.ClaimedAt.Equal(f.clock.Now()) {
		t.Errorf("expected ClaimedAt %v, got %v", f.clock.Now(), claim.ClaimedAt)
	}
	if claim.Version != 1 {
		t.Errorf("expected version 1, got %d", claim.Version)
	}
	assertEventTypes(t, f.eventTypes("I1"), domainClaims.EventClaimCreated)

	stored, err := f.stores.EventStore.GetEvents(f.ctx, claim.ID)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(stored) != 1 || stored[0].Source != "claim-service" {
		t.Fatalf("expected one persisted event from claim-service, got %+v", stored)
	}
}

func TestClaimService_ClaimErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture) (string, *domainClaims.Claimant)
		code  domainClaims.ErrorCode
	}{
		{
			name: "unknown issue",
			setup: func(t *testing.T, f *fixture) (string, *domainClaims.Claimant) {
				return "missing", f.addAgent(t, "a", domainClaims.AgentCoder)
			},
			code: domainClaims.CodeIssueNotFound,
		},
		{
			name: "already claimed",
			setup: func(t *testing.T, f *fixture) (string, *domainClaims.Claimant) {
				f.addIssue(t, "I1")
				f.mustClaim(t, "I1", f.addAgent(t, "a", domainClaims.AgentCoder))
				return "I1", f.addAgent(t, "b", domainClaims.AgentCoder)
			},
			code: domainClaims.CodeAlreadyClaimed,
		},
		{
			name: "claimed by self",
			setup: func(t *testing.T, f *fixture) (string, *domainClaims.Claimant) {
				f.addIssue(t, "I1")
				a := f.addAgent(t, "a", domainClaims.AgentCoder)
				f.mustClaim(t, "I1", a)
				return "I1", a
			},
			code: domainClaims.CodeAlreadyClaimed,
		},
		{
			name: "at capacity",
			setup: func(t *testing.T, f *fixture) (string, *domainClaims.Claimant) {
				a := domainClaims.NewAgent("a", "a", domainClaims.AgentCoder)
				a.MaxConcurrent = 1
				if err := f.claims.RegisterClaimant(f.ctx, a); err != nil {
					t.Fatalf("RegisterClaimant: %v", err)
				}
				f.addIssue(t, "I1")
				f.addIssue(t, "I2")
				f.mustClaim(t, "I1", a)
				return "I2", a
			},
			code: domainClaims.CodeMaxClaimsExceeded,
		},
		{
			name: "full workload",
			setup: func(t *testing.T, f *fixture) (string, *domainClaims.Claimant) {
				a := domainClaims.NewAgent("a", "a", domainClaims.AgentCoder)
				a.CurrentWorkload = 100
				if err := f.claims.RegisterClaimant(f.ctx, a); err != nil {
					t.Fatalf("RegisterClaimant: %v", err)
				}
				f.addIssue(t, "I1")
				return "I1", a
			},
			code: domainClaims.CodeMaxClaimsExceeded,
		},
		{
			name: "missing capability",
			setup: func(t *testing.T, f *fixture) (string, *domainClaims.Claimant) {
				f.addIssue(t, "I1", "go", "sql")
				return "I1", f.addAgent(t, "a", domainClaims.AgentCoder, "go")
			},
			code: domainClaims.CodeCapabilityMismatch,
		},
		{
			name: "empty claimant id",
			setup: func(t *testing.T, f *fixture) (string, *domainClaims.Claimant) {
				f.addIssue(t, "I1")
				return "I1", &domainClaims.Claimant{}
			},
			code: domainClaims.CodeValidationError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			issueID, claimant := tt.setup(t, f)
			_, err := f.claims.Claim(f.ctx, issueID, claimant)
			assertCode(t, err, tt.code)
		})
	}
}

func TestClaimService_ClaimUnregisteredClaimant(t *testing.T) {
	f := newFixture(t)
	f.addIssue(t, "I1")

	claim, err := f.claims.Claim(f.ctx, "I1", &domainClaims.Claimant{ID: "walk-in", Name: "qa tester"})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claim.Claimant.Type != domainClaims.ClaimantTypeAgent {
		t.Errorf("expected agent type default, got %s", claim.Claimant.Type)
	}
	if claim.Claimant.AgentType != domainClaims.AgentTester {
		t.Errorf("expected inferred tester, got %s", claim.Claimant.AgentType)
	}
}

func TestClaimService_Release(t *testing.T) {
	f := newFixture(t)
	f.addIssue(t, "I1")
	a := f.addAgent(t, "a", domainClaims.AgentCoder)
	b := f.addAgent(t, "b", domainClaims.AgentCoder)
	f.mustClaim(t, "I1", a)

	assertCode(t, f.claims.Release(f.ctx, "I1", "b"), domainClaims.CodeUnauthorized)
	assertCode(t, f.claims.Release(f.ctx, "I2", "a"), domainClaims.CodeNotClaimed)

	if err := f.claims.Release(f.ctx, "I1", "a"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got, _ := f.claims.GetClaim(f.ctx, "I1"); got != nil {
		t.Fatalf("expected no open claim after release, got %+v", got)
	}
	assertEventTypes(t, f.eventTypes("I1"),
		domainClaims.EventClaimCreated,
		domainClaims.EventClaimReleased,
		domainClaims.EventClaimStatusChanged,
	)

	// The issue is free again.
	f.mustClaim(t, "I1", b)
	all, err := f.claims.GetAllClaims(f.ctx)
	if err != nil {
		t.Fatalf("GetAllClaims: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected released claim to be kept alongside the new one, got %d", len(all))
	}
}

func TestClaimService_ReleaseWithPendingHandoff(t *testing.T) {
	f := newFixture(t)
	f.addIssue(t, "I1")
	a := f.addAgent(t, "a", domainClaims.AgentCoder)
	f.addAgent(t, "b", domainClaims.AgentCoder)
	f.mustClaim(t, "I1", a)

	if _, err := f.claims.RequestHandoff(f.ctx, "I1", "a", "b", "shift change"); err != nil {
		t.Fatalf("RequestHandoff: %v", err)
	}
	assertCode(t, f.claims.Release(f.ctx, "I1", "a"), domainClaims.CodeHandoffPending)
}

func TestClaimService_HandoffAccept(t *testing.T) {
	f := newFixture(t)
	f.addIssue(t, "I1")
	a := f.addAgent(t, "a", domainClaims.AgentCoder)
	f.addHuman(t, "alice")
	f.mustClaim(t, "I1", a)

	record, err := f.claims.RequestHandoff(f.ctx, "I1", "a", "alice", "needs domain knowledge")
	if err != nil {
		t.Fatalf("RequestHandoff: %v", err)
	}
	if record.Status != domainClaims.HandoffStatusPending {
		t.Errorf("expected pending handoff, got %s", record.Status)
	}
	if got := f.mustGet(t, "I1"); got.Status != domainClaims.StatusPendingHandoff {
		t.Fatalf("expected pending_handoff, got %s", got.Status)
	}

	assertCode(t, f.claims.AcceptHandoff(f.ctx, "I1", "a"), domainClaims.CodeUnauthorized)

	f.clock.Advance(time.Minute)
	if err := f.claims.AcceptHandoff(f.ctx, "I1", "alice"); err != nil {
		t.Fatalf("AcceptHandoff: %v", err)
	}

	got := f.mustGet(t, "I1")
	if got.Claimant.ID != "alice" || got.Status != domainClaims.StatusActive {
		t.Fatalf("expected active claim owned by alice, got %s/%s", got.Claimant.ID, got.Status)
	}
	if len(got.HandoffChain) != 1 || got.HandoffChain[0].Status != domainClaims.HandoffStatusAccepted {
		t.Fatalf("expected one accepted handoff, got %+v", got.HandoffChain)
	}
	assertEventTypes(t, f.eventTypes("I1"),
		domainClaims.EventClaimCreated,
		domainClaims.EventHandoffRequested,
		domainClaims.EventClaimStatusChanged,
		domainClaims.EventHandoffAccepted,
		domainClaims.EventClaimStatusChanged,
	)
}

func TestClaimService_HandoffReject(t *testing.T) {
	for _, rejecter := range []string{"a", "b"} {
		t.Run(rejecter, func(t *testing.T) {
			f := newFixture(t)
			f.addIssue(t, "I1")
			a := f.addAgent(t, "a", domainClaims.AgentCoder)
			f.addAgent(t, "b", domainClaims.AgentCoder)
			f.addAgent(t, "c", domainClaims.AgentCoder)
			f.mustClaim(t, "I1", a)

			if _, err := f.claims.RequestHandoff(f.ctx, "I1", "a", "b", ""); err != nil {
				t.Fatalf("RequestHandoff: %v", err)
			}
			assertCode(t, f.claims.RejectHandoff(f.ctx, "I1", "c", "no"), domainClaims.CodeUnauthorized)

			if err := f.claims.RejectHandoff(f.ctx, "I1", rejecter, "busy"); err != nil {
				t.Fatalf("RejectHandoff: %v", err)
			}
			got := f.mustGet(t, "I1")
			if got.Claimant.ID != "a" || got.Status != domainClaims.StatusActive {
				t.Fatalf("expected active claim kept by a, got %s/%s", got.Claimant.ID, got.Status)
			}
			if got.HandoffChain[0].Status != domainClaims.HandoffStatusRejected {
				t.Fatalf("expected rejected handoff, got %s", got.HandoffChain[0].Status)
			}
			assertCode(t, f.claims.AcceptHandoff(f.ctx, "I1", "b"), domainClaims.CodeHandoffNotFound)
		})
	}
}

func TestClaimService_RequestHandoffErrors(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		code     domainClaims.ErrorCode
	}{
		{"not owner", "b", "c", domainClaims.CodeUnauthorized},
		{"to self", "a", "a", domainClaims.CodeValidationError},
		{"unknown target", "a", "ghost", domainClaims.CodeClaimantNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addIssue(t, "I1")
			a := f.addAgent(t, "a", domainClaims.AgentCoder)
			f.addAgent(t, "b", domainClaims.AgentCoder)
			f.addAgent(t, "c", domainClaims.AgentCoder)
			f.mustClaim(t, "I1", a)

			_, err := f.claims.RequestHandoff(f.ctx, "I1", tt.from, tt.to, "")
			assertCode(t, err, tt.code)
		})
	}

	t.Run("already pending", func(t *testing.T) {
		f := newFixture(t)
		f.addIssue(t, "I1")
		a := f.addAgent(t, "a", domainClaims.AgentCoder)
		f.addAgent(t, "b", domainClaims.AgentCoder)
		f.addAgent(t, "c", domainClaims.AgentCoder)
		f.mustClaim(t, "I1", a)

		if _, err := f.claims.RequestHandoff(f.ctx, "I1", "a", "b", ""); err != nil {
			t.Fatalf("RequestHandoff: %v", err)
		}
		_, err := f.claims.RequestHandoff(f.ctx, "I1", "a", "c", "")
		assertCode(t, err, domainClaims.CodeHandoffPending)
	})
}

func TestClaimService_AcceptHandoffAtCapacity(t *testing.T) {
	f := newFixture(t)
	f.addIssue(t, "I1")
	f.addIssue(t, "I2")
	a := f.addAgent(t, "a", domainClaims.AgentCoder)
	b := domainClaims.NewAgent("b", "b", domainClaims.AgentCoder)
	b.MaxConcurrent = 1
	if err := f.claims.RegisterClaimant(f.ctx, b); err != nil {
		t.Fatalf("RegisterClaimant: %v", err)
	}
	f.mustClaim(t, "I1", a)
	f.mustClaim(t, "I2", b)

	if _, err := f.claims.RequestHandoff(f.ctx, "I1", "a", "b", ""); err != nil {
		t.Fatalf("RequestHandoff: %v", err)
	}
	assertCode(t, f.claims.AcceptHandoff(f.ctx, "I1", "b"), domainClaims.CodeMaxClaimsExceeded)
}

func TestClaimService_UpdateStatus(t *testing.T) {
	tests := []struct {
		name  string
		path  []domainClaims.ClaimStatus
		final domainClaims.ClaimStatus
		code  domainClaims.ErrorCode
	}{
		{"active to blocked", nil, domainClaims.StatusBlocked, ""},
		{"blocked to paused", []domainClaims.ClaimStatus{domainClaims.StatusBlocked}, domainClaims.StatusPaused, ""},
		{"paused to in_review", []domainClaims.ClaimStatus{domainClaims.StatusPaused}, domainClaims.StatusInReview, domainClaims.CodeInvalidStatusTransition},
		{"into pending_handoff", nil, domainClaims.StatusPendingHandoff, domainClaims.CodeInvalidStatusTransition},
		{"completed is terminal", []domainClaims.ClaimStatus{domainClaims.StatusCompleted}, domainClaims.StatusActive, domainClaims.CodeNotClaimed},
		{"unknown status", nil, domainClaims.ClaimStatus("archived"), domainClaims.CodeValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addIssue(t, "I1")
			f.mustClaim(t, "I1", f.addAgent(t, "a", domainClaims.AgentCoder))

			for _, s := range tt.path {
				if err := f.claims.UpdateStatus(f.ctx, "I1", s, ""); err != nil {
					t.Fatalf("UpdateStatus(%s): %v", s, err)
				}
			}
			err := f.claims.UpdateStatus(f.ctx, "I1", tt.final, "")
			if tt.code != "" {
				assertCode(t, err, tt.code)
				return
			}
			if err != nil {
				t.Fatalf("UpdateStatus(%s): %v", tt.final, err)
			}
			if got := f.mustGet(t, "I1"); got.Status != tt.final {
				t.Fatalf("expected %s, got %s", tt.final, got.Status)
			}
		})
	}
}

func TestClaimService_UpdateStatusBlockedBookkeeping(t *testing.T) {
	f := newFixture(t)
	f.addIssue(t, "I1")
	f.mustClaim(t, "I1", f.addAgent(t, "a", domainClaims.AgentCoder))

	if err := f.claims.UpdateStatus(f.ctx, "I1", domainClaims.StatusBlocked, "waiting on API keys"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got := f.mustGet(t, "I1")
	if got.BlockedAt == nil || !got.BlockedAt.Equal(f.clock.Now()) {
		t.Fatalf("expected BlockedAt set to now, got %v", got.BlockedAt)
	}
	if got.BlockedReason != "waiting on API keys" {
		t.Errorf("expected blocked reason recorded, got %q", got.BlockedReason)
	}
	if len(got.Notes) != 1 {
		t.Errorf("expected note appended, got %d", len(got.Notes))
	}

	if err := f.claims.UpdateStatus(f.ctx, "I1", domainClaims.StatusActive, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if got := f.mustGet(t, "I1"); got.BlockedAt != nil || got.BlockedReason != "" {
		t.Fatalf("expected blocked fields cleared, got %v %q", got.BlockedAt, got.BlockedReason)
	}
}

func TestClaimService_UpdateStatusSameStatusNoop(t *testing.T) {
	f := newFixture(t)
	f.addIssue(t, "I1")
	f.mustClaim(t, "I1", f.addAgent(t, "a", domainClaims.AgentCoder))

	if err := f.claims.UpdateStatus(f.ctx, "I1", domainClaims.StatusActive, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	assertEventTypes(t, f.eventTypes("I1"), domainClaims.EventClaimCreated)
}

func TestClaimService_UpdateProgress(t *testing.T) {
	f := newFixture(t)
	f.addIssue(t, "I1")
	f.mustClaim(t, "I1", f.addAgent(t, "a", domainClaims.AgentCoder))
	f.addAgent(t, "b", domainClaims.AgentCoder)

	assertCode(t, f.claims.UpdateProgress(f.ctx, "I1", "b", 10), domainClaims.CodeUnauthorized)

	f.clock.Advance(10 * time.Minute)
	if err := f.claims.UpdateProgress(f.ctx, "I1", "a", 40); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got := f.mustGet(t, "I1")
	if got.Progress != 40 {
		t.Errorf("expected progress 40, got %d", got.Progress)
	}
	if !got.LastActivityAt.Equal(f.clock.Now()) {
		t.Errorf("expected activity refreshed")
	}

	assertCode(t, f.claims.UpdateProgress(f.ctx, "I1", "a", 30), domainClaims.CodeValidationError)

	if err := f.claims.UpdateProgress(f.ctx, "I1", "a", 250); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if got := f.mustGet(t, "I1"); got.Progress != 100 {
		t.Errorf("expected progress clamped to 100, got %d", got.Progress)
	}
}

func TestClaimService_AddNote(t *testing.T) {
	f := newFixture(t)
	f.addIssue(t, "I1")
	f.mustClaim(t, "I1", f.addAgent(t, "a", domainClaims.AgentCoder))

	assertCode(t, f.claims.AddNote(f.ctx, "I1", "a", "  "), domainClaims.CodeValidationError)

	if err := f.claims.AddNote(f.ctx, "I1", "a", "found the root cause"); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	got := f.mustGet(t, "I1")
	if len(got.Notes) != 1 || got.Notes[0].Text != "found the root cause" || got.Notes[0].AuthorID != "a" {
		t.Fatalf("unexpected notes: %+v", got.Notes)
	}
}

func TestClaimService_Review(t *testing.T) {
	tests := []struct {
		name     string
		approved bool
		want     domainClaims.ClaimStatus
	}{
		{"approved", true, domainClaims.StatusCompleted},
		{"changes requested", false, domainClaims.StatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addIssue(t, "I1")
			f.mustClaim(t, "I1", f.addAgent(t, "a", domainClaims.AgentCoder))
			f.addAgent(t, "rev", domainClaims.AgentReviewer)

			err := f.claims.RequestReview(f.ctx, "I1", nil)
			assertCode(t, err, domainClaims.CodeValidationError)
			err = f.claims.RequestReview(f.ctx, "I1", []string{"ghost"})
			assertCode(t, err, domainClaims.CodeClaimantNotFound)

			if err := f.claims.RequestReview(f.ctx, "I1", []string{"rev"}); err != nil {
				t.Fatalf("RequestReview: %v", err)
			}
			assertCode(t, f.claims.CompleteReview(f.ctx, "I1", "a", true, ""), domainClaims.CodeUnauthorized)

			if err := f.claims.CompleteReview(f.ctx, "I1", "rev", tt.approved, "looks good"); err != nil {
				t.Fatalf("CompleteReview: %v", err)
			}

			claims, err := f.claims.GetClaimsByClaimant(f.ctx, "a")
			if err != nil {
				t.Fatalf("GetClaimsByClaimant: %v", err)
			}
			if len(claims) != 1 || claims[0].Status != tt.want {
				t.Fatalf("expected single claim in %s, got %+v", tt.want, claims)
			}
		})
	}
}

func TestClaimService_ExpireStale(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, "a", domainClaims.AgentCoder)
	for _, id := range []string{"idle", "busy", "paused"} {
		f.addIssue(t, id)
		f.mustClaim(t, id, a)
	}
	if err := f.claims.UpdateStatus(f.ctx, "paused", domainClaims.StatusPaused, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	f.clock.Advance(50 * time.Minute)
	if err := f.claims.UpdateProgress(f.ctx, "busy", "a", 20); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	f.clock.Advance(20 * time.Minute)

	expired, err := f.claims.ExpireStale(f.ctx, time.Hour)
	if err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if len(expired) != 1 || expired[0].IssueID != "idle" {
		t.Fatalf("expected only idle to expire, got %+v", expired)
	}
	if expired[0].Status != domainClaims.StatusExpired {
		t.Errorf("expected expired status, got %s", expired[0].Status)
	}
	if got, _ := f.claims.GetClaim(f.ctx, "idle"); got != nil {
		t.Errorf("expected idle to have no open claim")
	}
	if got := f.mustGet(t, "paused"); got.Status != domainClaims.StatusPaused {
		t.Errorf("expected paused claim untouched, got %s", got.Status)
	}
	assertEventTypes(t, f.eventTypes("idle"),
		domainClaims.EventClaimCreated,
		domainClaims.EventClaimExpired,
		domainClaims.EventClaimStatusChanged,
	)
}

func TestClaimService_AutoAssign(t *testing.T) {
	f := newFixture(t)
	issue := f.addIssue(t, "I1", "go", "sql")
	issue.Labels = []string{"backend"}

	full := domainClaims.NewAgent("gopher", "gopher", domainClaims.AgentCoder, "go", "sql")
	full.Specializations = []string{"backend"}
	if err := f.claims.RegisterClaimant(f.ctx, full); err != nil {
		t.Fatalf("RegisterClaimant: %v", err)
	}
	f.addAgent(t, "partial", domainClaims.AgentCoder, "go")
	f.addHuman(t, "nobody")

	best, err := f.claims.AutoAssign(f.ctx, issue)
	if err != nil {
		t.Fatalf("AutoAssign: %v", err)
	}
	if best == nil || best.ID != "gopher" {
		t.Fatalf("expected gopher, got %+v", best)
	}

	candidates, err := f.claims.ScoreCandidates(f.ctx, issue)
	if err != nil {
		t.Fatalf("ScoreCandidates: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}
	// 2 capabilities, all matched, one specialization, agent bonus.
	if want := float64(10*2 + 20 + 5 + 3); candidates[0].Score != want {
		t.Errorf("expected top score %v, got %v", want, candidates[0].Score)
	}
	if candidates[1].Claimant.ID != "partial" || candidates[1].Qualified {
		t.Errorf("expected unqualified partial second, got %+v", candidates[1])
	}
}

func TestClaimService_AutoAssignNoQualifiedClaimant(t *testing.T) {
	f := newFixture(t)
	issue := f.addIssue(t, "I1", "rust")
	f.addAgent(t, "gopher", domainClaims.AgentCoder, "go")

	best, err := f.claims.AutoAssign(f.ctx, issue)
	if err != nil {
		t.Fatalf("AutoAssign: %v", err)
	}
	if best != nil {
		t.Fatalf("expected nil assignment, got %s", best.ID)
	}
}

func TestClaimService_AutoAssignPrefersIdleClaimant(t *testing.T) {
	f := newFixture(t)
	issue := f.addIssue(t, "I1")
	f.addIssue(t, "I2")
	busy := f.addAgent(t, "busy", domainClaims.AgentCoder)
	f.addAgent(t, "idle", domainClaims.AgentCoder)
	f.mustClaim(t, "I2", busy)

	best, err := f.claims.AutoAssign(f.ctx, issue)
	if err != nil {
		t.Fatalf("AutoAssign: %v", err)
	}
	if best == nil || best.ID != "idle" {
		t.Fatalf("expected idle, got %+v", best)
	}
}

func TestClaimService_AutoAssignNilIssue(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "gopher", domainClaims.AgentCoder, "go")

	best, err := f.claims.AutoAssign(f.ctx, nil)
	assertCode(t, err, domainClaims.CodeValidationError)
	if best != nil {
		t.Fatalf("expected no assignment, got %s", best.ID)
	}

	_, err = f.claims.ScoreCandidates(f.ctx, nil)
	assertCode(t, err, domainClaims.CodeValidationError)
}

func TestClaimService_EventAppendFailureRestoresClaim(t *testing.T) {
	stores := NewInMemoryStores()
	failing := &failingEventStore{EventStore: stores.EventStore}
	stores.EventStore = failing
	f := newFixtureWithStores(t, stores)
	f.addIssue(t, "I1")
	f.mustClaim(t, "I1", f.addAgent(t, "a", domainClaims.AgentCoder))

	failing.setFail(true)
	if err := f.claims.UpdateStatus(f.ctx, "I1", domainClaims.StatusBlocked, ""); err == nil {
		t.Fatal("expected append failure to surface")
	}
	got := f.mustGet(t, "I1")
	if got.Status != domainClaims.StatusActive {
		t.Fatalf("expected status restored to active, got %s", got.Status)
	}
	assertEventTypes(t, f.eventTypes("I1"), domainClaims.EventClaimCreated)

	// Restoring bumps the version, so later writes still succeed.
	failing.setFail(false)
	if err := f.claims.UpdateStatus(f.ctx, "I1", domainClaims.StatusBlocked, ""); err != nil {
		t.Fatalf("UpdateStatus after recovery: %v", err)
	}
}

func TestClaimService_EventAppendFailureRollsBackNewClaim(t *testing.T) {
	stores := NewInMemoryStores()
	failing := &failingEventStore{EventStore: stores.EventStore}
	stores.EventStore = failing
	f := newFixtureWithStores(t, stores)
	f.addIssue(t, "I1")
	a := f.addAgent(t, "a", domainClaims.AgentCoder)

	failing.setFail(true)
	if _, err := f.claims.Claim(f.ctx, "I1", a); err == nil {
		t.Fatal("expected append failure to surface")
	}
	if got, _ := f.claims.GetClaim(f.ctx, "I1"); got != nil {
		t.Fatalf("expected no open claim after rollback, got %s", got.Status)
	}

	failing.setFail(false)
	f.mustClaim(t, "I1", a)
}

func TestClaimService_GetEventHistory(t *testing.T) {
	f := newFixture(t)
	f.addIssue(t, "I1")
	f.addIssue(t, "I2")
	a := f.addAgent(t, "a", domainClaims.AgentCoder)
	f.mustClaim(t, "I1", a)
	f.mustClaim(t, "I2", a)
	if err := f.claims.AddNote(f.ctx, "I1", "a", "progress"); err != nil {
		t.Fatalf("AddNote: %v", err)
	}

	history, err := f.claims.GetEventHistory(f.ctx, "I1", 0)
	if err != nil {
		t.Fatalf("GetEventHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 events for I1, got %d", len(history))
	}

	all, err := f.claims.GetEventHistory(f.ctx, "", 0)
	if err != nil {
		t.Fatalf("GetEventHistory: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events overall, got %d", len(all))
	}
}
