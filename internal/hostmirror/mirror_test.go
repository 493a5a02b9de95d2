package hostmirror

import (
	"reflect"
	"testing"

	"noescape.gg/internal/protocol"
	"noescape.gg/internal/sim/engine/logic/mathx"
)

func TestApplyStateAndLookups(t *testing.T) {
	m := New()
	m.ApplyState(protocol.StateMsg{
		Type: protocol.TypeState,
		Players: []protocol.PlayerState{
			{ID: "1", Pos: mathx.Vec3{X: 0}, Health: 100, MaxHealth: 100, Connected: true},
			{ID: "2", Pos: mathx.Vec3{X: 50}, Health: 100, MaxHealth: 100},
			{ID: "3", Pos: mathx.Vec3{X: 150}, Health: 100, MaxHealth: 100},
		},
		Permissions: []protocol.PermissionGrant{{Actor: "1", Perms: []string{"NoEscape.Raid.TPBlock"}}},
		Friends:     []protocol.FriendList{{Actor: "1", Friends: []string{"2"}}},
		Clans:       []protocol.ClanState{{Tag: "ABC", Members: []string{"1", "3"}}},
		Cupboards:   []protocol.CupboardState{{ID: "tc", OwnerID: "1", Pos: mathx.Vec3{X: 10}, Authorized: []string{"2"}}},
	})

	if got := m.Nearby(mathx.Vec3{}, 100); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Fatalf("nearby=%v", got)
	}
	if !m.HasPermission("1", "noescape.raid.tpblock") {
		t.Fatalf("permission lookups are case-insensitive")
	}
	if f, ok := m.FriendsOf("1"); !ok || !reflect.DeepEqual(f, []string{"2"}) {
		t.Fatalf("friends=%v ok=%v", f, ok)
	}
	if _, ok := m.FriendsOf("2"); ok {
		t.Fatalf("unknown friend list must report ok=false")
	}
	if tag, ok := m.ClanOf("3"); !ok || tag != "ABC" {
		t.Fatalf("clan=%q ok=%v", tag, ok)
	}
	if cbs := m.Cupboards(mathx.Vec3{}, 20); len(cbs) != 1 || cbs[0].Authorized[0] != "2" {
		t.Fatalf("cupboards=%+v", cbs)
	}
}

func TestClanUpdateRepointsMembers(t *testing.T) {
	m := New()
	m.SetClan("ABC", []string{"1", "2"})
	m.SetClan("ABC", []string{"2", "3"})
	if _, ok := m.ClanOf("1"); ok {
		t.Fatalf("departed member should lose the tag")
	}
	if tag, _ := m.ClanOf("3"); tag != "ABC" {
		t.Fatalf("new member tag=%q", tag)
	}

	m.SetClan("XYZ", []string{"2"})
	m.RemoveClan("ABC")
	if tag, _ := m.ClanOf("2"); tag != "XYZ" {
		t.Fatalf("removing ABC must not clear a member who moved to XYZ, got %q", tag)
	}
	if _, ok := m.MembersOf("ABC"); ok {
		t.Fatalf("removed clan still present")
	}
}

func TestPermissionsReplaceAndRevoke(t *testing.T) {
	m := New()
	m.Grant("1", []string{"a", "b"}, false)
	m.Grant("1", []string{"c"}, false)
	m.Revoke("1", []string{"a"})
	if m.HasPermission("1", "a") || !m.HasPermission("1", "b") || !m.HasPermission("1", "c") {
		t.Fatalf("grant/revoke mismatch")
	}
	m.Grant("1", []string{"d"}, true)
	if m.HasPermission("1", "b") || !m.HasPermission("1", "d") {
		t.Fatalf("replace should drop previous grants")
	}
}

func TestRemovalsRunAfterUpserts(t *testing.T) {
	m := New()
	m.ApplyState(protocol.StateMsg{
		Players:         []protocol.PlayerState{{ID: "1"}},
		RemovePlayers:   []string{"1"},
		Cupboards:       []protocol.CupboardState{{ID: "tc"}},
		RemoveCupboards: []string{"tc"},
	})
	if c := m.Counts(); c.Players != 0 || c.Cupboards != 0 {
		t.Fatalf("counts=%+v", c)
	}
}
