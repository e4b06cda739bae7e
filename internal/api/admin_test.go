package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/edgeberry/edgeberry-core/internal/audit"
	"github.com/edgeberry/edgeberry-core/internal/device"
)

// waitForAudit polls until at least n entries match filter.
func waitForAudit(t *testing.T, env *testEnv, filter audit.Filter, n int) []audit.Entry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		page, err := env.auditRepo.List(context.Background(), filter)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(page.Entries) >= n {
			return page.Entries
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit entries = %d, want at least %d", len(page.Entries), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	env := newTestEnv(t)

	routes := []struct {
		method, path, body string
	}{
		{http.MethodGet, "/api/v1/admin/devices", ""},
		{http.MethodPost, "/api/v1/admin/devices", `{"id":"EB-0100"}`},
		{http.MethodGet, "/api/v1/admin/devices/stats", ""},
		{http.MethodDelete, "/api/v1/admin/devices/" + unclaimedDevice, ""},
		{http.MethodPost, "/api/v1/admin/devices/" + aliceDevice + "/release", ""},
		{http.MethodGet, "/api/v1/admin/audit", ""},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := env.do(t, env.alice, rt.method, rt.path, rt.body)
			wantStatus(t, w, http.StatusForbidden)
		})
	}
	if got := env.owner(t, aliceDevice); got != env.alice.ID {
		t.Errorf("owner changed by forbidden request: %q", got)
	}
}

func TestAdmin_ListDevices(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, env.admin, http.MethodGet, "/api/v1/admin/devices", "")
	wantStatus(t, w, http.StatusOK)
	all := decode[struct {
		Count int `json:"count"`
	}](t, w)
	if all.Count != 2 {
		t.Errorf("count = %d, want 2", all.Count)
	}

	w = env.do(t, env.admin, http.MethodGet, "/api/v1/admin/devices?owner=unclaimed", "")
	wantStatus(t, w, http.StatusOK)
	free := decode[struct {
		Devices []device.Device `json:"devices"`
	}](t, w)
	if len(free.Devices) != 1 || free.Devices[0].ID != unclaimedDevice {
		t.Errorf("unclaimed devices = %+v", free.Devices)
	}
}

func TestAdmin_OnboardAndDelete(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, env.admin, http.MethodPost, "/api/v1/admin/devices",
		`{"id":"EB-0100","name":"Batch 7 unit","hardware_version":"1.2","batch_number":"B7"}`)
	wantStatus(t, w, http.StatusCreated)

	d := decode[device.Device](t, w)
	if d.OwnerID != device.Unclaimed || d.AdminID != env.admin.ID || d.BatchNumber != "B7" {
		t.Errorf("onboarded = %+v", d)
	}
	known, err := env.registry.IsKnown(context.Background(), "EB-0100")
	if err != nil || !known {
		t.Errorf("IsKnown() = %v, %v; want true", known, err)
	}

	w = env.do(t, env.admin, http.MethodPost, "/api/v1/admin/devices", `{"id":"EB-0100"}`)
	wantStatus(t, w, http.StatusConflict)

	w = env.do(t, env.admin, http.MethodPost, "/api/v1/admin/devices", `{"id":"bad/id"}`)
	wantStatus(t, w, http.StatusBadRequest)

	w = env.do(t, env.admin, http.MethodDelete, "/api/v1/admin/devices/EB-0100", "")
	wantStatus(t, w, http.StatusNoContent)

	w = env.do(t, env.admin, http.MethodDelete, "/api/v1/admin/devices/EB-0100", "")
	wantStatus(t, w, http.StatusNotFound)

	entries := waitForAudit(t, env, audit.Filter{EntityID: "EB-0100"}, 2)
	actions := map[string]bool{}
	for _, e := range entries {
		actions[e.Action] = true
		if e.UserID != env.admin.ID {
			t.Errorf("entry %s user = %q, want admin", e.Action, e.UserID)
		}
	}
	if !actions[audit.ActionOnboard] || !actions[audit.ActionDelete] {
		t.Errorf("audit actions = %v, want onboard and delete", actions)
	}
}

func TestAdmin_ForceRelease(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, env.admin, http.MethodPost, "/api/v1/admin/devices/"+aliceDevice+"/release", "")
	wantStatus(t, w, http.StatusOK)
	if got := env.owner(t, aliceDevice); got != device.Unclaimed {
		t.Errorf("owner = %q, want unclaimed", got)
	}
}

func TestAdmin_AuditRecordsClaims(t *testing.T) {
	env := newTestEnv(t)
	env.transport.AutoRespond(okReply)

	w := env.do(t, env.bob, http.MethodPost, "/api/v1/things/"+unclaimedDevice+"/claim", "")
	wantStatus(t, w, http.StatusOK)

	waitForAudit(t, env, audit.Filter{Action: audit.ActionClaim, EntityID: unclaimedDevice}, 1)

	w = env.do(t, env.admin, http.MethodGet, "/api/v1/admin/audit?action=claim&entity_id="+unclaimedDevice, "")
	wantStatus(t, w, http.StatusOK)

	page := decode[audit.Page](t, w)
	if page.Total != 1 || len(page.Entries) != 1 {
		t.Fatalf("page = %+v, want one claim entry", page)
	}
	e := page.Entries[0]
	if e.UserID != env.bob.ID || e.Details["outcome"] != "claimed" {
		t.Errorf("entry = %+v", e)
	}

	// The confirmation round-trip is recorded as a command.
	waitForAudit(t, env, audit.Filter{Action: audit.ActionCommand, EntityID: unclaimedDevice}, 1)
}
