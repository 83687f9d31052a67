package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"teamline/internal/app"
	"teamline/internal/db"
	"teamline/internal/domain"
	"teamline/internal/engine"
	"teamline/internal/engine/auth"
	"teamline/internal/migrate"
	"teamline/internal/repo"
	"teamline/internal/routing"
)

type testEnv struct {
	Engine engine.Engine
	Repo   repo.Repo
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	ctx := context.Background()
	portalID, cfg, err := app.ResolvePortalAndConfig(ctx, "portal-1", r)
	if err != nil {
		t.Fatalf("resolve portal: %v", err)
	}
	cfg.Admins = []string{"admin"}
	router := routing.NewRosterResolver(r, portalID, 0)
	eng := engine.New(conn, cfg, portalID, router)
	eng.Now = func() time.Time { return time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC) }

	members := []domain.Member{
		{ActorID: "client-1", PortalID: portalID, Role: domain.RoleClient, DisplayName: "Carol Client"},
		{ActorID: "sup-1", PortalID: portalID, Role: domain.RoleSupervisor, DisplayName: "Sam Supervisor"},
		{ActorID: "tm-1", PortalID: portalID, Role: domain.RoleTeammate, DisplayName: "Alice Cooper", Aliases: []string{"Alice"}},
	}
	for _, m := range members {
		if err := r.UpsertMember(ctx, m); err != nil {
			t.Fatalf("seed member %s: %v", m.ActorID, err)
		}
	}
	if err := r.InsertRosterEntry(ctx, domain.RosterEntry{
		ID: "entry-1", PortalID: portalID, TeammateName: "Alice Cooper", SupervisorID: "sup-1",
	}); err != nil {
		t.Fatalf("seed roster: %v", err)
	}
	return testEnv{Engine: eng, Repo: r, Ctx: ctx}
}

func mustCreate(t *testing.T, env testEnv) domain.Assignment {
	t.Helper()
	a, err := env.Engine.CreateAssignment(env.Ctx, "client-1", engine.CreateOptions{
		Title:     "Research competitors",
		DueDate:   "2026-02-01",
		Teammates: []string{"Alice Cooper"},
	})
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	return a
}

func TestCreateRoutesToSupervisor(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreate(t, env)
	if a.Status != domain.StatusPendingReview {
		t.Fatalf("status = %s, want pending_review", a.Status)
	}
	if len(a.Supervisors) != 1 || a.Supervisors[0] != "sup-1" {
		t.Fatalf("supervisors = %v, want [sup-1]", a.Supervisors)
	}
	events, err := env.Repo.ListActivity(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if len(events) != 1 || events[0].Type != "Submitted" {
		t.Fatalf("events = %v, want one Submitted", events)
	}
	feed, err := env.Engine.ListNotifications(env.Ctx, "sup-1")
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(feed) != 1 || feed[0].AssignmentID != a.ID {
		t.Fatalf("supervisor feed = %v, want one notification for %s", feed, a.ID)
	}
}

func TestCreateRejectsBadDates(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name  string
		start string
		due   string
	}{
		{"due yesterday", "", "2026-01-14"},
		{"due missing", "", ""},
		{"due malformed", "", "02/01/2026"},
		{"start in past", "2026-01-01", "2026-02-01"},
		{"due before start", "2026-02-10", "2026-02-01"},
	}
	for _, tc := range cases {
		_, err := env.Engine.CreateAssignment(env.Ctx, "client-1", engine.CreateOptions{
			Title:     "t",
			StartDate: tc.start,
			DueDate:   tc.due,
			Teammates: []string{"Alice Cooper"},
		})
		var verr engine.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: err = %v, want ValidationError", tc.name, err)
		}
	}
	all, err := env.Repo.ListByPortal(env.Ctx, "portal-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Fatalf("rejected creates persisted %d assignments", len(all))
	}
}

func TestCreateFailsWhenNoSupervisorResolves(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateAssignment(env.Ctx, "client-1", engine.CreateOptions{
		Title:     "Unrouted work",
		DueDate:   "2026-02-01",
		Teammates: []string{"Nobody Known"},
	})
	var rerr engine.RoutingError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v, want RoutingError", err)
	}
	all, err := env.Repo.ListByPortal(env.Ctx, "portal-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Fatalf("routing failure persisted %d assignments", len(all))
	}
}

func TestCreateToleratesPartialRouting(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.CreateAssignment(env.Ctx, "client-1", engine.CreateOptions{
		Title:     "Mixed roster",
		DueDate:   "2026-02-01",
		Teammates: []string{"Alice Cooper", "Nobody Known"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(a.Supervisors) != 1 || a.Supervisors[0] != "sup-1" {
		t.Fatalf("supervisors = %v, want [sup-1]", a.Supervisors)
	}
}

func TestApproveNotifiesClientAndTeammates(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreate(t, env)
	a, err := env.Engine.SupervisorAct(env.Ctx, "sup-1", a.ID, engine.SupervisorOptions{Action: "approve"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if a.Status != domain.StatusApproved {
		t.Fatalf("status = %s, want approved", a.Status)
	}
	events, _ := env.Repo.ListActivity(env.Ctx, a.ID)
	if len(events) != 2 || events[1].Type != "Approved" {
		t.Fatalf("events = %v, want Submitted then Approved", events)
	}
	clientFeed, err := env.Engine.ListNotifications(env.Ctx, "client-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(clientFeed) != 1 {
		t.Fatalf("client feed size = %d, want 1", len(clientFeed))
	}
	tmFeed, err := env.Engine.ListNotifications(env.Ctx, "tm-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tmFeed) != 1 {
		t.Fatalf("teammate feed size = %d, want 1", len(tmFeed))
	}
}

func TestIllegalTransitionsLeaveStateUnchanged(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreate(t, env)

	// Complete before delivery.
	_, err := env.Engine.MarkComplete(env.Ctx, "admin", a.ID, "")
	var terr engine.TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("complete from pending_review: err = %v, want TransitionError", err)
	}

	// Accept after decline.
	if _, err := env.Engine.SupervisorAct(env.Ctx, "sup-1", a.ID, engine.SupervisorOptions{Action: "decline"}); err != nil {
		t.Fatalf("decline: %v", err)
	}
	_, err = env.Engine.TeammateAct(env.Ctx, "tm-1", a.ID, engine.TeammateOptions{Action: "accept"})
	if !errors.As(err, &terr) {
		t.Fatalf("accept on declined: err = %v, want TransitionError", err)
	}

	// Extend on a terminal assignment.
	_, err = env.Engine.ExtendDueDate(env.Ctx, "client-1", a.ID, "2026-03-01")
	if !errors.As(err, &terr) {
		t.Fatalf("extend on declined: err = %v, want TransitionError", err)
	}

	stored, err := env.Repo.GetAssignment(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.StatusDeclined || stored.DueDate != "2026-02-01" {
		t.Fatalf("stored = %s/%s, want declined/2026-02-01", stored.Status, stored.DueDate)
	}
	n, err := env.Repo.CountActivity(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("activity count = %d, want 2 (Submitted, Declined)", n)
	}
}

func TestRedeliveryAppendsRecords(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreate(t, env)
	if _, err := env.Engine.SupervisorAct(env.Ctx, "sup-1", a.ID, engine.SupervisorOptions{Action: "approve"}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := env.Engine.TeammateAct(env.Ctx, "tm-1", a.ID, engine.TeammateOptions{Action: "accept"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := env.Engine.TeammateAct(env.Ctx, "tm-1", a.ID, engine.TeammateOptions{
		Action: "deliver", Note: "first pass",
		Files: []domain.Attachment{{Name: "report.pdf", Location: "https://files/report.pdf"}},
	}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	a2, err := env.Engine.TeammateAct(env.Ctx, "tm-1", a.ID, engine.TeammateOptions{Action: "deliver", Note: "revised"})
	if err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	if a2.Status != domain.StatusDelivered {
		t.Fatalf("status = %s, want delivered", a2.Status)
	}
	deliveries, err := env.Engine.ListDeliveries(env.Ctx, "tm-1", a.ID)
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(deliveries) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(deliveries))
	}
	if deliveries[0].Teammate != "Alice Cooper" || deliveries[0].Status != "submitted" {
		t.Fatalf("delivery = %+v", deliveries[0])
	}
}

func TestTeammateVisibilityGating(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreate(t, env)

	if _, err := env.Engine.GetForCaller(env.Ctx, "tm-1", a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("teammate get before approve: err = %v, want not found", err)
	}
	list, err := env.Engine.ListForCaller(env.Ctx, "tm-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("teammate sees %d assignments before approve", len(list))
	}

	if _, err := env.Engine.SupervisorAct(env.Ctx, "sup-1", a.ID, engine.SupervisorOptions{Action: "approve"}); err != nil {
		t.Fatal(err)
	}
	list, err = env.Engine.ListForCaller(env.Ctx, "tm-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != a.ID {
		t.Fatalf("teammate list after approve = %v", list)
	}
}

func TestOwnershipScoping(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Repo.UpsertMember(env.Ctx, domain.Member{
		ActorID: "client-2", PortalID: "portal-1", Role: domain.RoleClient, DisplayName: "Other Client",
	}); err != nil {
		t.Fatal(err)
	}
	a := mustCreate(t, env)

	_, err := env.Engine.CancelAssignment(env.Ctx, "client-2", a.ID, "")
	var ferr auth.ForbiddenError
	if !errors.As(err, &ferr) {
		t.Fatalf("foreign client cancel: err = %v, want ForbiddenError", err)
	}
	if _, err := env.Engine.GetForCaller(env.Ctx, "client-2", a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign client get: err = %v, want not found", err)
	}
	// Admin bypasses ownership.
	if _, err := env.Engine.GetForCaller(env.Ctx, "admin", a.ID); err != nil {
		t.Fatalf("admin get: %v", err)
	}
}

func TestEditReturnsToPendingReview(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreate(t, env)
	if _, err := env.Engine.SupervisorAct(env.Ctx, "sup-1", a.ID, engine.SupervisorOptions{Action: "approve"}); err != nil {
		t.Fatal(err)
	}
	title := "Research competitors thoroughly"
	a2, err := env.Engine.EditAssignment(env.Ctx, "client-1", a.ID, engine.EditOptions{Title: &title})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if a2.Status != domain.StatusPendingReview || a2.Title != title {
		t.Fatalf("after edit = %s/%q", a2.Status, a2.Title)
	}
	events, _ := env.Repo.ListActivity(env.Ctx, a.ID)
	last := events[len(events)-1]
	if last.Type != "Updated" {
		t.Fatalf("last event = %s, want Updated", last.Type)
	}
}

func TestExtendRecheckedAgainstStoredStart(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.CreateAssignment(env.Ctx, "client-1", engine.CreateOptions{
		Title:     "Windowed work",
		StartDate: "2026-02-01",
		DueDate:   "2026-02-10",
		Teammates: []string{"Alice Cooper"},
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.ExtendDueDate(env.Ctx, "client-1", a.ID, "2026-01-20")
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("extend before start: err = %v, want ValidationError", err)
	}
	a2, err := env.Engine.ExtendDueDate(env.Ctx, "client-1", a.ID, "2026-03-01")
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if a2.DueDate != "2026-03-01" || a2.Status != domain.StatusPendingReview {
		t.Fatalf("after extend = %s/%s", a2.DueDate, a2.Status)
	}
}

func TestApproveExtensionUpdatesDeadline(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreate(t, env)
	if _, err := env.Engine.ExtendDueDate(env.Ctx, "client-1", a.ID, "2026-03-01"); err != nil {
		t.Fatal(err)
	}
	a2, err := env.Engine.SupervisorAct(env.Ctx, "sup-1", a.ID, engine.SupervisorOptions{
		Action: "approve_extension", NewDueDate: "2026-03-01",
	})
	if err != nil {
		t.Fatalf("approve_extension: %v", err)
	}
	if a2.Status != domain.StatusInProgress || a2.DueDate != "2026-03-01" {
		t.Fatalf("after approve_extension = %s/%s", a2.Status, a2.DueDate)
	}
	events, _ := env.Repo.ListActivity(env.Ctx, a.ID)
	last := events[len(events)-1]
	if last.Type != "Deadline updated" {
		t.Fatalf("last event = %s, want Deadline updated", last.Type)
	}
}

func TestActivityDeletionAuthorization(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreate(t, env)
	if _, err := env.Engine.SupervisorAct(env.Ctx, "sup-1", a.ID, engine.SupervisorOptions{Action: "approve"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.TeammateAct(env.Ctx, "tm-1", a.ID, engine.TeammateOptions{Action: "deliver", Note: "done"}); err != nil {
		t.Fatal(err)
	}
	events, _ := env.Repo.ListActivity(env.Ctx, a.ID)
	submitted, delivered := events[0], events[len(events)-1]
	if delivered.Author != "Alice Cooper" {
		t.Fatalf("delivery author = %q", delivered.Author)
	}

	var ferr auth.ForbiddenError
	// Client may not delete events, not even on their own assignment.
	_, err := env.Engine.DeleteActivityEvent(env.Ctx, "client-1", a.ID, engine.EventKey{ID: delivered.ID})
	if !errors.As(err, &ferr) {
		t.Fatalf("client delete: err = %v, want ForbiddenError", err)
	}
	// Teammate may not delete someone else's event.
	_, err = env.Engine.DeleteActivityEvent(env.Ctx, "tm-1", a.ID, engine.EventKey{ID: submitted.ID})
	if !errors.As(err, &ferr) {
		t.Fatalf("teammate delete foreign event: err = %v, want ForbiddenError", err)
	}
	// Teammate deletes their own event.
	if _, err := env.Engine.DeleteActivityEvent(env.Ctx, "tm-1", a.ID, engine.EventKey{ID: delivered.ID}); err != nil {
		t.Fatalf("teammate delete own event: %v", err)
	}
	// Admin deletes anything.
	if _, err := env.Engine.DeleteActivityEvent(env.Ctx, "admin", a.ID, engine.EventKey{ID: submitted.ID}); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	n, _ := env.Repo.CountActivity(env.Ctx, a.ID)
	if n != 1 {
		t.Fatalf("activity count = %d, want 1 (Approved remains)", n)
	}
}

func TestActivityDeletionByLegacyTuple(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreate(t, env)
	events, _ := env.Repo.ListActivity(env.Ctx, a.ID)
	ev := events[0]
	removed, err := env.Engine.DeleteActivityEvent(env.Ctx, "admin", a.ID, engine.EventKey{
		TS: ev.TS, Author: ev.Author, Type: ev.Type, Note: ev.Note,
	})
	if err != nil {
		t.Fatalf("delete by tuple: %v", err)
	}
	if removed.ID != ev.ID {
		t.Fatalf("removed id = %d, want %d", removed.ID, ev.ID)
	}
}

func TestActivityDeletionByAssignedAlias(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Repo.InsertRosterEntry(env.Ctx, domain.RosterEntry{
		ID: "entry-2", PortalID: "portal-1", TeammateName: "Alice", SupervisorID: "sup-1",
	}); err != nil {
		t.Fatal(err)
	}
	a, err := env.Engine.CreateAssignment(env.Ctx, "client-1", engine.CreateOptions{
		Title:     "Compile weekly digest",
		DueDate:   "2026-02-01",
		Teammates: []string{"Alice"},
	})
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	if _, err := env.Engine.SupervisorAct(env.Ctx, "sup-1", a.ID, engine.SupervisorOptions{Action: "approve"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.TeammateAct(env.Ctx, "tm-1", a.ID, engine.TeammateOptions{Action: "deliver", Note: "done"}); err != nil {
		t.Fatal(err)
	}
	events, _ := env.Repo.ListActivity(env.Ctx, a.ID)
	delivered := events[len(events)-1]
	// The event is recorded under the teammate-list name, not the display name.
	if delivered.Author != "Alice" {
		t.Fatalf("delivery author = %q, want Alice", delivered.Author)
	}
	if _, err := env.Engine.DeleteActivityEvent(env.Ctx, "tm-1", a.ID, engine.EventKey{ID: delivered.ID}); err != nil {
		t.Fatalf("teammate delete own aliased event: %v", err)
	}
	// A different teammate still may not touch it.
	if err := env.Repo.UpsertMember(env.Ctx, domain.Member{
		ActorID: "tm-2", PortalID: "portal-1", Role: domain.RoleTeammate, DisplayName: "Bob Builder",
	}); err != nil {
		t.Fatal(err)
	}
	var ferr auth.ForbiddenError
	_, err = env.Engine.DeleteActivityEvent(env.Ctx, "tm-2", a.ID, engine.EventKey{ID: events[0].ID})
	if !errors.As(err, &ferr) {
		t.Fatalf("foreign teammate delete: err = %v, want ForbiddenError", err)
	}
}

func TestMessageTargetsSingleRecipient(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreate(t, env)
	if _, err := env.Engine.SendMessage(env.Ctx, "sup-1", a.ID, engine.MessageOptions{
		Text: "please clarify the brief", TargetRole: domain.RoleClient, TargetID: "client-1",
	}); err != nil {
		t.Fatalf("send message: %v", err)
	}
	msgs, err := env.Engine.ListMessages(env.Ctx, "client-1", a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].SenderName != "Sam Supervisor" {
		t.Fatalf("messages = %v", msgs)
	}
	events, _ := env.Repo.ListActivity(env.Ctx, a.ID)
	last := events[len(events)-1]
	if last.Type != "Reply" {
		t.Fatalf("last event = %s, want Reply", last.Type)
	}
	feed, _ := env.Engine.ListNotifications(env.Ctx, "client-1")
	if len(feed) != 1 {
		t.Fatalf("client feed size = %d, want 1", len(feed))
	}
	// Teammate was not the target and gets nothing.
	tmFeed, _ := env.Engine.ListNotifications(env.Ctx, "tm-1")
	if len(tmFeed) != 0 {
		t.Fatalf("teammate feed size = %d, want 0", len(tmFeed))
	}
	// Outsiders cannot reply.
	var ferr auth.ForbiddenError
	_, err = env.Engine.SendMessage(env.Ctx, "tm-1", a.ID, engine.MessageOptions{
		Text: "hello", TargetRole: domain.RoleClient, TargetID: "client-1",
	})
	// tm-1 is a party (teammate on the assignment), so this succeeds.
	if err != nil {
		t.Fatalf("teammate reply: %v", err)
	}
	if err := env.Repo.UpsertMember(env.Ctx, domain.Member{
		ActorID: "stranger", PortalID: "portal-1", Role: domain.RoleClient, DisplayName: "Stranger",
	}); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.SendMessage(env.Ctx, "stranger", a.ID, engine.MessageOptions{
		Text: "hi", TargetRole: domain.RoleClient, TargetID: "client-1",
	})
	if !errors.As(err, &ferr) {
		t.Fatalf("stranger reply: err = %v, want ForbiddenError", err)
	}
}

func TestNotificationReadMarker(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreate(t, env)
	_ = a
	feed, err := env.Engine.ListNotifications(env.Ctx, "sup-1")
	if err != nil || len(feed) != 1 {
		t.Fatalf("feed = %v err = %v", feed, err)
	}
	if feed[0].ReadAt != "" {
		t.Fatalf("new notification already read")
	}
	if err := env.Engine.MarkNotificationRead(env.Ctx, "sup-1", feed[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	feed, _ = env.Engine.ListNotifications(env.Ctx, "sup-1")
	if feed[0].ReadAt == "" {
		t.Fatalf("read marker not persisted")
	}
	// Another recipient cannot mark it.
	if err := env.Engine.MarkNotificationRead(env.Ctx, "client-1", feed[0].ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign mark read: err = %v, want not found", err)
	}
}

func TestSoftDeleteHidesFromEveryoneButAdmin(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreate(t, env)
	a2, err := env.Engine.DeleteAssignment(env.Ctx, "client-1", a.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if a2.Status != domain.StatusDeleted {
		t.Fatalf("status = %s, want deleted", a2.Status)
	}
	if _, err := env.Engine.GetForCaller(env.Ctx, "client-1", a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("owner get after delete: err = %v, want not found", err)
	}
	list, _ := env.Engine.ListForCaller(env.Ctx, "client-1")
	if len(list) != 0 {
		t.Fatalf("owner still lists %d assignments", len(list))
	}
	if _, err := env.Engine.GetForCaller(env.Ctx, "admin", a.ID); err != nil {
		t.Fatalf("admin get after delete: %v", err)
	}
}

func TestGuestSeesNothing(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreate(t, env)
	list, err := env.Engine.ListForCaller(env.Ctx, "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("guest sees %d assignments", len(list))
	}
	var ferr auth.ForbiddenError
	_, err = env.Engine.CreateAssignment(env.Ctx, "nobody", engine.CreateOptions{
		Title: "x", DueDate: "2026-02-01", Teammates: []string{"Alice Cooper"},
	})
	if !errors.As(err, &ferr) {
		t.Fatalf("guest create: err = %v, want ForbiddenError", err)
	}
	if _, err := env.Engine.GetForCaller(env.Ctx, "nobody", a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("guest get: err = %v, want not found", err)
	}
}

func TestDeclineKeepsStatusButRecordsAnswer(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreate(t, env)
	if _, err := env.Engine.SupervisorAct(env.Ctx, "sup-1", a.ID, engine.SupervisorOptions{Action: "approve"}); err != nil {
		t.Fatal(err)
	}
	a2, err := env.Engine.TeammateAct(env.Ctx, "tm-1", a.ID, engine.TeammateOptions{Action: "decline", Note: "overbooked"})
	if err != nil {
		t.Fatalf("teammate decline: %v", err)
	}
	if a2.Status != domain.StatusApproved {
		t.Fatalf("status = %s, want approved (unchanged)", a2.Status)
	}
	acceptances, err := env.Repo.ListAcceptances(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(acceptances) != 1 || acceptances[0].State != "declined" {
		t.Fatalf("acceptances = %v", acceptances)
	}
}

func TestMarkCompleteClosesDeliveredWork(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreate(t, env)
	if _, err := env.Engine.SupervisorAct(env.Ctx, "sup-1", a.ID, engine.SupervisorOptions{Action: "approve"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.TeammateAct(env.Ctx, "tm-1", a.ID, engine.TeammateOptions{Action: "deliver"}); err != nil {
		t.Fatal(err)
	}
	var ferr auth.ForbiddenError
	if _, err := env.Engine.MarkComplete(env.Ctx, "sup-1", a.ID, ""); !errors.As(err, &ferr) {
		t.Fatalf("supervisor complete: want ForbiddenError")
	}
	a2, err := env.Engine.MarkComplete(env.Ctx, "admin", a.ID, "looks good")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if a2.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed", a2.Status)
	}
	events, _ := env.Repo.ListActivity(env.Ctx, a.ID)
	last := events[len(events)-1]
	if last.Type != "Completed" {
		t.Fatalf("last event = %s, want Completed", last.Type)
	}
}

func TestConcurrentActionsLoseNoWrites(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreate(t, env)
	if _, err := env.Engine.SupervisorAct(env.Ctx, "sup-1", a.ID, engine.SupervisorOptions{Action: "approve"}); err != nil {
		t.Fatal(err)
	}

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.Engine.SupervisorAct(env.Ctx, "sup-1", a.ID, engine.SupervisorOptions{
				Action:     "approve_extension",
				NewDueDate: "2026-03-01",
				Files:      []domain.Attachment{{Name: fmt.Sprintf("brief-%d.pdf", i), Location: "https://files.example/brief"}},
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if successes == 0 {
		t.Fatal("no concurrent action succeeded")
	}

	stored, err := env.Repo.GetAssignment(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	// Each committed action appended exactly one file; none overwrote another.
	if len(stored.SupervisorFiles) != successes {
		t.Fatalf("stored files = %d, want %d", len(stored.SupervisorFiles), successes)
	}
	seen := map[string]bool{}
	for _, f := range stored.SupervisorFiles {
		if seen[f.Name] {
			t.Fatalf("file %s stored twice", f.Name)
		}
		seen[f.Name] = true
	}
	n, err := env.Repo.CountActivity(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	// Submitted + Approved + one Deadline updated per committed action.
	if n != 2+successes {
		t.Fatalf("activity count = %d, want %d", n, 2+successes)
	}
	if stored.DueDate != "2026-03-01" {
		t.Fatalf("due date = %s, want 2026-03-01", stored.DueDate)
	}
}
