package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"noescape.gg/internal/protocol"
)

type scenario struct {
	name string
	// needs lists the subscriptions the scenario depends on; it is skipped otherwise.
	needs []string
	run   func(ctx context.Context, c *client, ids cast) error
}

// cast names the players of one run so repeated runs against a live server
// never see each other's blocks.
type cast struct {
	Owner     string
	Raider    string
	Bystander string
	Far       string
	Victim    string
}

func newCast(run string) cast {
	return cast{
		Owner:     "sim-" + run + "-owner",
		Raider:    "sim-" + run + "-raider",
		Bystander: "sim-" + run + "-bystander",
		Far:       "sim-" + run + "-far",
		Victim:    "sim-" + run + "-victim",
	}
}

var scenarios = []scenario{
	{name: "raid", needs: []string{protocol.EventStructureDamage}, run: raidScenario},
	{name: "death", needs: []string{protocol.EventStructureDamage, protocol.EventPlayerDeath}, run: deathScenario},
	{name: "combat", needs: []string{protocol.EventPlayerAttack}, run: combatScenario},
}

func selectScenarios(names string) ([]scenario, error) {
	if names == "" || names == "all" {
		return scenarios, nil
	}
	var out []scenario
	for _, n := range strings.Split(names, ",") {
		n = strings.TrimSpace(n)
		found := false
		for _, s := range scenarios {
			if s.name == n {
				out = append(out, s)
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown scenario %q", n)
		}
	}
	return out, nil
}

func player(id string, x float64) protocol.PlayerState {
	return protocol.PlayerState{ID: id, Pos: protocol.Vec3{X: x}, Health: 100, MaxHealth: 100, Connected: true}
}

func seed(c *client, ids cast) error {
	return c.State(protocol.StateMsg{
		Players: []protocol.PlayerState{
			player(ids.Owner, 5),
			player(ids.Raider, 10),
			player(ids.Bystander, 50),
			player(ids.Far, 150),
			player(ids.Victim, 20),
		},
		Permissions: []protocol.PermissionGrant{
			{Actor: ids.Raider, Perms: []string{"noescape.raid.tpblock", "noescape.combat.tpblock"}},
			{Actor: ids.Victim, Perms: []string{"noescape.combat.tpblock"}},
		},
	})
}

func wallDamage(owner, raider string) protocol.EventMsg {
	return protocol.EventMsg{
		Event: protocol.EventStructureDamage,
		Entity: &protocol.EntityState{
			ID:            "wall-" + owner,
			Prefab:        "assets/prefabs/building core/wall/wall.prefab",
			OwnerID:       owner,
			BuildingBlock: true,
			Health:        500,
			MaxHealth:     500,
		},
		Initiator: &protocol.InitiatorState{PlayerID: raider},
		Weapon:    "rocket.launcher",
		Damage:    map[string]float64{"Explosion": 120},
	}
}

func expectBlocked(ctx context.Context, c *client, actor, kind string, want bool) (protocol.QueryResultMsg, error) {
	res, err := c.Query(ctx, actor, kind)
	if err != nil {
		return res, fmt.Errorf("query %s: %w", actor, err)
	}
	if res.Blocked != want {
		return res, fmt.Errorf("query %s kind=%q: blocked=%v want %v", actor, kind, res.Blocked, want)
	}
	return res, nil
}

func raidScenario(ctx context.Context, c *client, ids cast) error {
	if err := seed(c, ids); err != nil {
		return err
	}
	if err := c.Event(wallDamage(ids.Owner, ids.Raider)); err != nil {
		return err
	}
	res, err := expectBlocked(ctx, c, ids.Raider, "raid", true)
	if err != nil {
		return err
	}
	if res.RaidRemainingMs <= 0 {
		return fmt.Errorf("raider remaining=%dms", res.RaidRemainingMs)
	}
	for _, id := range []string{ids.Owner, ids.Bystander} {
		if _, err := expectBlocked(ctx, c, id, "raid", true); err != nil {
			return err
		}
	}
	if _, err := expectBlocked(ctx, c, ids.Far, "", false); err != nil {
		return err
	}

	g, err := c.Gate(ctx, ids.Raider, "tp")
	if err != nil {
		return err
	}
	if g.Allowed || g.Kind != "raid" || g.Message == "" {
		return fmt.Errorf("raider tp: %+v", g)
	}
	// No permission, no gate.
	if g, err = c.Gate(ctx, ids.Bystander, "tp"); err != nil {
		return err
	}
	if !g.Allowed {
		return fmt.Errorf("bystander tp denied: %+v", g)
	}

	st, err := c.Stop(ctx, ids.Raider, "raid")
	if err != nil {
		return err
	}
	if st.Stopped != 1 {
		return fmt.Errorf("stop raider: stopped=%d", st.Stopped)
	}
	if st, err = c.Stop(ctx, ids.Raider, "raid"); err != nil || st.Stopped != 0 {
		return fmt.Errorf("second stop must be a no-op: %+v %v", st, err)
	}
	if _, err := expectBlocked(ctx, c, ids.Raider, "", false); err != nil {
		return err
	}
	for _, id := range []string{ids.Owner, ids.Bystander, ids.Victim} {
		if _, err := c.Stop(ctx, id, ""); err != nil {
			return err
		}
	}
	return nil
}

func deathScenario(ctx context.Context, c *client, ids cast) error {
	if err := seed(c, ids); err != nil {
		return err
	}
	if err := c.Event(wallDamage(ids.Owner, ids.Raider)); err != nil {
		return err
	}
	if _, err := expectBlocked(ctx, c, ids.Raider, "raid", true); err != nil {
		return err
	}
	if err := c.Event(protocol.EventMsg{Event: protocol.EventPlayerDeath, Actor: ids.Raider}); err != nil {
		return err
	}
	// The unblock is delayed; poll until it lands.
	deadline := time.Now().Add(5 * time.Second)
	for {
		res, err := c.Query(ctx, ids.Raider, "raid")
		if err != nil {
			return err
		}
		if !res.Blocked {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("raider still blocked after death (%dms left)", res.RaidRemainingMs)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	for _, id := range []string{ids.Owner, ids.Bystander, ids.Victim} {
		if _, err := c.Stop(ctx, id, ""); err != nil {
			return err
		}
	}
	return nil
}

func combatScenario(ctx context.Context, c *client, ids cast) error {
	if err := seed(c, ids); err != nil {
		return err
	}
	hit := func(dmg float64) protocol.EventMsg {
		return protocol.EventMsg{
			Event:    protocol.EventPlayerAttack,
			Attacker: &protocol.CombatantState{ID: ids.Raider, Player: true, Health: 100, MaxHealth: 100},
			Target:   &protocol.CombatantState{ID: ids.Victim, Player: true, Health: 100, MaxHealth: 100},
			Damage:   map[string]float64{"Bullet": dmg},
		}
	}
	if err := c.Event(hit(25)); err != nil {
		return err
	}
	res, err := c.Query(ctx, ids.Raider, "combat")
	if err != nil {
		return err
	}
	victim, err := c.Query(ctx, ids.Victim, "combat")
	if err != nil {
		return err
	}
	if !res.Blocked && !victim.Blocked {
		return fmt.Errorf("neither side combat-blocked")
	}
	if victim.Blocked {
		g, err := c.Gate(ctx, ids.Victim, "tp")
		if err != nil {
			return err
		}
		if g.Allowed || g.Kind != "combat" {
			return fmt.Errorf("victim tp: %+v", g)
		}
	}
	for _, id := range []string{ids.Raider, ids.Victim} {
		if _, err := c.Stop(ctx, id, ""); err != nil {
			return err
		}
	}
	return nil
}
