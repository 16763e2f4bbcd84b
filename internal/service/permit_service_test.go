package service

import (
	"context"
	"testing"

	"github.com/safesite/ptw-service/internal/errors"
	"github.com/safesite/ptw-service/internal/permit"
	"github.com/safesite/ptw-service/internal/repository"
)

func TestCreatePermitValidation(t *testing.T) {
	ctx := context.Background()
	permits, _, _, _ := newTestServices()

	t.Run("zero approvers", func(t *testing.T) {
		req := baseRequest()
		req.AreaManagerID = nil
		req.SafetyOfficerID = nil
		req.SiteLeaderID = nil
		_, err := permits.CreatePermit(ctx, req)
		wantErrCode(t, err, errors.ErrCodeInvalidInput)
	})

	t.Run("missing title", func(t *testing.T) {
		req := baseRequest()
		req.Title = ""
		_, err := permits.CreatePermit(ctx, req)
		wantErrCode(t, err, errors.ErrCodeInvalidInput)
	})

	t.Run("missing location", func(t *testing.T) {
		req := baseRequest()
		req.Location = ""
		_, err := permits.CreatePermit(ctx, req)
		wantErrCode(t, err, errors.ErrCodeInvalidInput)
	})

	t.Run("work window must be forward", func(t *testing.T) {
		req := baseRequest()
		req.EndTime = req.StartTime
		_, err := permits.CreatePermit(ctx, req)
		wantErrCode(t, err, errors.ErrCodeInvalidInput)
	})
}

func TestCreatePermitSeedsSlots(t *testing.T) {
	ctx := context.Background()
	permits, _, _, _ := newTestServices()

	req := baseRequest()
	req.TeamMembers = []TeamMemberRequest{{Name: "J. Fields", Trade: "welder", Company: "Acme"}}
	req.Hazards = []HazardRequest{{Category: "hot_work", Description: "sparks", ControlMeasure: "fire watch"}}
	req.PPE = []string{"helmet", "face shield"}
	req.ChecklistAnswers = []ChecklistAnswerRequest{{Question: "Area cordoned off?", Answer: true}}

	p, err := permits.CreatePermit(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	if p.AreaManager.Status != permit.SlotPending || p.SafetyOfficer.Status != permit.SlotPending {
		t.Error("assigned slots must be seeded pending")
	}
	if p.SiteLeader.Assigned() {
		t.Error("site leader slot must stay unassigned")
	}
	if len(p.TeamMembers) != 1 || len(p.Hazards) != 1 || len(p.PPE) != 2 || len(p.ChecklistAnswers) != 1 {
		t.Errorf("children: team=%d hazards=%d ppe=%d checklist=%d",
			len(p.TeamMembers), len(p.Hazards), len(p.PPE), len(p.ChecklistAnswers))
	}
}

func TestSerialNumbersAreSequential(t *testing.T) {
	ctx := context.Background()
	permits, _, _, _ := newTestServices()

	for i, want := range []string{"PTW-0001", "PTW-0002", "PTW-0003"} {
		p, err := permits.CreatePermit(ctx, baseRequest())
		if err != nil {
			t.Fatal(err)
		}
		if p.SerialNumber != want {
			t.Errorf("permit %d: serial = %s, want %s", i, p.SerialNumber, want)
		}
	}
}

func TestListPermitsFilter(t *testing.T) {
	ctx := context.Background()
	permits, _, _, _ := newTestServices()

	if _, err := permits.CreatePermit(ctx, baseRequest()); err != nil {
		t.Fatal(err)
	}
	other := baseRequest()
	other.CreatedBy = "u-other"
	if _, err := permits.CreatePermit(ctx, other); err != nil {
		t.Fatal(err)
	}

	mine, err := permits.ListPermits(ctx, repository.PermitFilter{CreatedBy: strPtr("u-sup")})
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 {
		t.Errorf("filtered list = %d permits, want 1", len(mine))
	}

	initiated, err := permits.ListPermits(ctx, repository.PermitFilter{Status: strPtr(permit.StatusInitiated)})
	if err != nil {
		t.Fatal(err)
	}
	if len(initiated) != 2 {
		t.Errorf("status filter = %d permits, want 2", len(initiated))
	}
}

func TestListPermitsPendingApproval(t *testing.T) {
	ctx := context.Background()
	permits, lifecycle, _, _ := newTestServices()

	p, err := permits.CreatePermit(ctx, baseRequest())
	if err != nil {
		t.Fatal(err)
	}

	pending, err := permits.ListPermits(ctx, repository.PermitFilter{PendingApprover: strPtr("u-am")})
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending list = %d permits, want 1", len(pending))
	}

	if _, _, err := lifecycle.Approve(ctx, p.ID, permit.RoleAreaManager, "u-am", "sig"); err != nil {
		t.Fatal(err)
	}
	pending, err = permits.ListPermits(ctx, repository.PermitFilter{PendingApprover: strPtr("u-am")})
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("decided slot must leave the pending queue, got %d", len(pending))
	}
}

func TestDeletePermit(t *testing.T) {
	ctx := context.Background()
	permits, _, _, _ := newTestServices()

	p, err := permits.CreatePermit(ctx, baseRequest())
	if err != nil {
		t.Fatal(err)
	}

	wantErrCode(t, permits.DeletePermit(ctx, p.ID, "u-other"), errors.ErrCodeUnauthorized)

	if err := permits.DeletePermit(ctx, p.ID, "u-sup"); err != nil {
		t.Fatal(err)
	}
	_, _, err = permits.GetPermit(ctx, p.ID)
	wantErrCode(t, err, errors.ErrCodeNotFound)
}
