package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/faeln1/go-contact-groups/internal/domain/group"
	"github.com/faeln1/go-contact-groups/internal/domain/membership"
	"github.com/faeln1/go-contact-groups/internal/domain/notification"
)

func TestCreateGroupRequiresCompleteProfile(t *testing.T) {
	h := newHarness(t)

	_, err := h.groups.CreateGroup(h.ctx, "ghost", group.CreateInput{Name: "Reunion"})
	if !errors.Is(err, ErrProfileIncomplete) {
		t.Fatalf("expected ErrProfileIncomplete for missing profile, got %v", err)
	}

	h.account(t, "ana", "Ana", "", "ana@example.com")
	_, err = h.groups.CreateGroup(h.ctx, "ana", group.CreateInput{Name: "Reunion"})
	if !errors.Is(err, ErrProfileIncomplete) {
		t.Fatalf("expected ErrProfileIncomplete without last name, got %v", err)
	}
	if KindOf(err) != KindPreconditionFailed {
		t.Fatalf("expected precondition kind, got %q", KindOf(err))
	}
}

func TestCreateGroupAddsOwnerMembership(t *testing.T) {
	h := newHarness(t)
	h.account(t, "ana", "Ana", "Lima", "Ana@Example.com")

	out := h.openGroup(t, "ana", "Reunion 2026")
	if out.GroupID == "" || out.ShareToken == "" {
		t.Fatalf("expected ids, got %+v", out)
	}

	members, err := h.members.ListActiveMembers(h.ctx, out.GroupID, "ana")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(members) != 1 || !members[0].IsOwner || members[0].UserID != "ana" {
		t.Fatalf("expected only the owner membership, got %+v", members)
	}
	if members[0].Email != "ana@example.com" || !members[0].NotificationsEnabled {
		t.Fatalf("owner membership not built from profile: %+v", members[0])
	}
	if n := len(h.events(t, out.GroupID)); n != 0 {
		t.Fatalf("creation should not emit events, got %d", n)
	}
}

func TestCreateGroupValidation(t *testing.T) {
	h := newHarness(t)
	h.account(t, "ana", "Ana", "Lima", "ana@example.com")

	tests := []struct {
		name string
		in   group.CreateInput
		want error
	}{
		{name: "blank name", in: group.CreateInput{Name: "   "}, want: ErrValidation},
		{name: "markup only name", in: group.CreateInput{Name: "<script>x</script>"}, want: ErrValidation},
		{name: "unknown access type", in: group.CreateInput{Name: "A", AccessType: "secret"}, want: ErrValidation},
		{name: "password group without password", in: group.CreateInput{Name: "A", AccessType: "password"}, want: ErrPasswordRequired},
		{name: "password on open group", in: group.CreateInput{Name: "A", Password: "x"}, want: ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.groups.CreateGroup(h.ctx, "ana", tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateGroupStripsMarkup(t *testing.T) {
	h := newHarness(t)
	h.account(t, "ana", "Ana", "Lima", "ana@example.com")

	out, err := h.groups.CreateGroup(h.ctx, "ana", group.CreateInput{
		Name:        "<b>Tom & Jerry</b>",
		Description: `<img src=x onerror="alert(1)">Summer party`,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := h.groups.GetGroup(h.ctx, out.GroupID, "ana")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Tom & Jerry" {
		t.Fatalf("unexpected name %q", got.Name)
	}
	if got.Description != "Summer party" {
		t.Fatalf("unexpected description %q", got.Description)
	}
}

func TestCreateGroupRetriesTokenCollisionOnce(t *testing.T) {
	seq := []string{"dup", "dup", "fresh"}
	i := 0
	tokens := NewTokenIssuerFunc(func() string {
		v := seq[i%len(seq)]
		i++
		return v
	})
	h := newHarness(t, withTokens(tokens))
	h.account(t, "ana", "Ana", "Lima", "ana@example.com")

	first := h.openGroup(t, "ana", "First")
	if first.ShareToken != "dup" {
		t.Fatalf("unexpected first token %q", first.ShareToken)
	}
	second := h.openGroup(t, "ana", "Second")
	if second.ShareToken != "fresh" {
		t.Fatalf("expected retry to use a fresh token, got %q", second.ShareToken)
	}
}

func TestCreateGroupReportsPersistentCollision(t *testing.T) {
	h := newHarness(t, withTokens(NewTokenIssuerFunc(func() string { return "same" })))
	h.account(t, "ana", "Ana", "Lima", "ana@example.com")
	h.openGroup(t, "ana", "First")

	_, err := h.groups.CreateGroup(h.ctx, "ana", group.CreateInput{Name: "Second"})
	if !errors.Is(err, ErrTokenCollision) {
		t.Fatalf("expected ErrTokenCollision, got %v", err)
	}
	if KindOf(err) != KindConflict {
		t.Fatalf("expected conflict kind, got %q", KindOf(err))
	}
	groups, _ := h.groups.ListGroupsForUser(h.ctx, "ana")
	if len(groups) != 1 {
		t.Fatalf("failed creation must not leave rows, got %d groups", len(groups))
	}
}

func TestCloseGroupIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.account(t, "ana", "Ana", "Lima", "ana@example.com")
	g := h.openGroup(t, "ana", "Reunion")

	if err := h.groups.CloseGroup(h.ctx, g.GroupID, "bob"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-owner, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := h.groups.CloseGroup(h.ctx, g.GroupID, "ana"); err != nil {
			t.Fatalf("close #%d: %v", i+1, err)
		}
	}
	evts := h.events(t, g.GroupID)
	if len(evts) != 1 || evts[0].Type != notification.GroupClosed {
		t.Fatalf("expected a single group_closed event, got %v", h.eventTypes(t, g.GroupID))
	}
	var data notification.GroupClosedData
	if err := evts[0].Decode(&data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.ClosedBy != "ana" || data.GroupName != "Reunion" {
		t.Fatalf("unexpected payload %+v", data)
	}
	if err := h.groups.CloseGroup(h.ctx, "missing", "ana"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestClosedGroupIsReadOnlyUntilReopened(t *testing.T) {
	h := newHarness(t)
	h.account(t, "ana", "Ana", "Lima", "ana@example.com")
	g := h.openGroup(t, "ana", "Reunion")
	if err := h.groups.CloseGroup(h.ctx, g.GroupID, "ana"); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, err := h.groups.UpdateSettings(h.ctx, g.GroupID, "ana", group.SettingsPatch{Name: ptr("Renamed")})
	if !errors.Is(err, ErrGroupClosed) {
		t.Fatalf("expected ErrGroupClosed, got %v", err)
	}

	out, err := h.groups.UpdateSettings(h.ctx, g.GroupID, "ana", group.SettingsPatch{IsClosed: ptr(false), Name: ptr("Renamed")})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if out.IsClosed || out.Name != "Renamed" {
		t.Fatalf("unexpected group after reopen %+v", out)
	}

	// closing through settings emits exactly like CloseGroup
	if _, err := h.groups.UpdateSettings(h.ctx, g.GroupID, "ana", group.SettingsPatch{IsClosed: ptr(true)}); err != nil {
		t.Fatalf("close via settings: %v", err)
	}
	types := h.eventTypes(t, g.GroupID)
	if len(types) != 2 || types[1] != notification.GroupClosed {
		t.Fatalf("unexpected events %v", types)
	}

	// closing an already closed group is a no-op on both paths
	out, err = h.groups.UpdateSettings(h.ctx, g.GroupID, "ana", group.SettingsPatch{IsClosed: ptr(true)})
	if err != nil || !out.IsClosed {
		t.Fatalf("second close via settings: %+v %v", out, err)
	}
	if err := h.groups.CloseGroup(h.ctx, g.GroupID, "ana"); err != nil {
		t.Fatalf("second CloseGroup: %v", err)
	}
	if types := h.eventTypes(t, g.GroupID); len(types) != 2 {
		t.Fatalf("repeated close must not emit, got %v", types)
	}
	if _, err := h.groups.UpdateSettings(h.ctx, g.GroupID, "ana", group.SettingsPatch{IsClosed: ptr(true), Name: ptr("Again")}); !errors.Is(err, ErrGroupClosed) {
		t.Fatalf("expected ErrGroupClosed when closing with other edits, got %v", err)
	}
}

func TestUpdateSettingsPasswordTransitions(t *testing.T) {
	h := newHarness(t)
	h.account(t, "ana", "Ana", "Lima", "ana@example.com")
	h.account(t, "bob", "Bob", "Reis", "bob@example.com")
	g := h.openGroup(t, "ana", "Reunion")

	if _, err := h.groups.UpdateSettings(h.ctx, g.GroupID, "bob", group.SettingsPatch{Name: ptr("x")}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	// non-owners are turned away before any hashing
	long := strings.Repeat("x", 200)
	if _, err := h.groups.UpdateSettings(h.ctx, g.GroupID, "bob", group.SettingsPatch{AccessType: ptr("password"), Password: &long}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden before password validation, got %v", err)
	}
	if _, err := h.groups.UpdateSettings(h.ctx, "missing", "ana", group.SettingsPatch{Password: ptr("s3cret")}); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
	if _, err := h.groups.UpdateSettings(h.ctx, g.GroupID, "ana", group.SettingsPatch{AccessType: ptr("password")}); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
	if _, err := h.groups.UpdateSettings(h.ctx, g.GroupID, "ana", group.SettingsPatch{Password: ptr("s3cret")}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for password on open group, got %v", err)
	}

	out, err := h.groups.UpdateSettings(h.ctx, g.GroupID, "ana", group.SettingsPatch{AccessType: ptr("password"), Password: ptr("s3cret")})
	if err != nil {
		t.Fatalf("switch to password: %v", err)
	}
	if !out.IsPasswordProtected() || out.PasswordHash == "" || out.PasswordHash == "s3cret" {
		t.Fatalf("expected hashed password, got %+v", out)
	}
	if _, err := h.members.JoinAuthenticated(h.ctx, "bob", g.ShareToken, membership.JoinInput{}); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired on join, got %v", err)
	}

	// the stored hash is kept when only the name changes
	out, err = h.groups.UpdateSettings(h.ctx, g.GroupID, "ana", group.SettingsPatch{Name: ptr("Reunion II")})
	if err != nil || out.PasswordHash == "" {
		t.Fatalf("expected hash kept, got %+v %v", out, err)
	}

	out, err = h.groups.UpdateSettings(h.ctx, g.GroupID, "ana", group.SettingsPatch{AccessType: ptr("open")})
	if err != nil {
		t.Fatalf("switch to open: %v", err)
	}
	if out.PasswordHash != "" || out.AccessType != group.AccessOpen {
		t.Fatalf("expected hash cleared, got %+v", out)
	}
	h.join(t, "bob", g.ShareToken)
}

func TestRegenerateTokenRevokesOldLink(t *testing.T) {
	h := newHarness(t)
	h.account(t, "ana", "Ana", "Lima", "ana@example.com")
	h.account(t, "bob", "Bob", "Reis", "bob@example.com")
	g := h.openGroup(t, "ana", "Reunion")

	if _, err := h.groups.RegenerateToken(h.ctx, g.GroupID, "bob"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	token, err := h.groups.RegenerateToken(h.ctx, g.GroupID, "ana")
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if token == g.ShareToken {
		t.Fatalf("expected a different token")
	}
	if _, err := h.groups.ResolveShareToken(h.ctx, g.ShareToken); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("old token should not resolve, got %v", err)
	}
	if _, err := h.members.JoinAuthenticated(h.ctx, "bob", g.ShareToken, membership.JoinInput{}); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("old token should not join, got %v", err)
	}
	pub, err := h.groups.ResolveShareToken(h.ctx, token)
	if err != nil || pub.ID != g.GroupID {
		t.Fatalf("new token should resolve, got %+v %v", pub, err)
	}
}

func TestResolveShareTokenExposesMetadataOnly(t *testing.T) {
	h := newHarness(t)
	h.account(t, "ana", "Ana", "Lima", "ana@example.com")
	g := h.passwordGroup(t, "ana", "Reunion", "pw")
	if _, err := h.members.JoinAnonymous(h.ctx, g.ShareToken, membership.JoinInput{FirstName: "Caio", Email: "caio@example.com", Password: ptr("pw")}); err != nil {
		t.Fatalf("join: %v", err)
	}

	pub, err := h.groups.ResolveShareToken(h.ctx, "  "+g.ShareToken+" ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := group.PublicGroup{ID: g.GroupID, Name: "Reunion", AccessType: group.AccessPassword, MemberCount: 2}
	if *pub != want {
		t.Fatalf("got %+v, want %+v", *pub, want)
	}
	if _, err := h.groups.ResolveShareToken(h.ctx, ""); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound for empty token, got %v", err)
	}
}

func TestGetGroupRequiresMembership(t *testing.T) {
	h := newHarness(t)
	h.account(t, "ana", "Ana", "Lima", "ana@example.com")
	h.account(t, "bob", "Bob", "Reis", "bob@example.com")
	g := h.openGroup(t, "ana", "Reunion")

	if _, err := h.groups.GetGroup(h.ctx, g.GroupID, "bob"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := h.groups.GetGroup(h.ctx, g.GroupID, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for anonymous, got %v", err)
	}
	h.join(t, "bob", g.ShareToken)
	sum, err := h.groups.GetGroup(h.ctx, g.GroupID, "bob")
	if err != nil {
		t.Fatalf("get as member: %v", err)
	}
	if sum.IsOwner || sum.MemberCount != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if _, err := h.groups.GetGroup(h.ctx, "nope", "ana"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestTransferOwnership(t *testing.T) {
	h := newHarness(t)
	h.account(t, "ana", "Ana", "Lima", "ana@example.com")
	h.account(t, "bob", "Bob", "Reis", "bob@example.com")
	g := h.openGroup(t, "ana", "Reunion")
	bobM := h.join(t, "bob", g.ShareToken)
	anonM := h.joinAnon(t, g.ShareToken, "Caio", "caio@example.com")

	if err := h.groups.TransferOwnership(h.ctx, g.GroupID, "bob", bobM); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := h.groups.TransferOwnership(h.ctx, g.GroupID, "ana", anonM); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for anonymous target, got %v", err)
	}
	if err := h.groups.TransferOwnership(h.ctx, g.GroupID, "ana", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := h.groups.TransferOwnership(h.ctx, g.GroupID, "ana", bobM); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	sum, err := h.groups.GetGroup(h.ctx, g.GroupID, "bob")
	if err != nil || !sum.IsOwner {
		t.Fatalf("bob should own the group now: %+v %v", sum, err)
	}
	// the previous owner is a regular member and may now leave
	anaM, err := h.store.ActiveMembershipByUser(h.ctx, g.GroupID, "ana")
	if err != nil {
		t.Fatalf("load ana membership: %v", err)
	}
	if err := h.members.RemoveMembership(h.ctx, anaM.ID, "ana"); err != nil {
		t.Fatalf("former owner leave: %v", err)
	}
}

func TestListGroupsForUser(t *testing.T) {
	h := newHarness(t)
	h.account(t, "ana", "Ana", "Lima", "ana@example.com")
	h.account(t, "bob", "Bob", "Reis", "bob@example.com")
	mine := h.openGroup(t, "ana", "Mine")
	theirs := h.openGroup(t, "bob", "Theirs")
	h.openGroup(t, "bob", "Other")
	h.join(t, "ana", theirs.ShareToken)

	list, err := h.groups.ListGroupsForUser(h.ctx, "ana")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(list))
	}
	owned := map[string]bool{}
	for _, s := range list {
		owned[s.ID] = s.IsOwner
	}
	if !owned[mine.GroupID] || owned[theirs.GroupID] {
		t.Fatalf("unexpected ownership flags %+v", owned)
	}
}
