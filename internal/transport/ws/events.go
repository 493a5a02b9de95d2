package ws

import (
	"fmt"

	"noescape.gg/internal/protocol"
	"noescape.gg/internal/sim/engine"
	"noescape.gg/internal/sim/engine/feature/policy"
)

// toInput converts a validated EVENT into the engine input it stands for.
func toInput(ev protocol.EventMsg) (engine.Input, error) {
	switch ev.Event {
	case protocol.EventStructureDamage, protocol.EventStructureDestroy:
		if ev.Entity == nil || ev.Initiator == nil {
			return nil, fmt.Errorf("%s: entity and initiator required", ev.Event)
		}
		hit := policy.StructureHit{
			Entity: policy.Entity{
				ID:            ev.Entity.ID,
				Prefab:        ev.Entity.Prefab,
				OwnerID:       ev.Entity.OwnerID,
				BuildingBlock: ev.Entity.BuildingBlock,
				Twig:          ev.Entity.Twig,
				Health:        ev.Entity.Health,
				MaxHealth:     ev.Entity.MaxHealth,
				Pos:           ev.Entity.Pos,
			},
			Initiator: policy.Initiator{PlayerID: ev.Initiator.PlayerID, OwnerID: ev.Initiator.OwnerID},
			Weapon:    ev.Weapon,
			Damage:    ev.Damage,
		}
		if ev.HitPos != nil {
			hit.HitPos = *ev.HitPos
		}
		if ev.Event == protocol.EventStructureDamage {
			return engine.StructureDamaged{Hit: hit}, nil
		}
		return engine.StructureDestroyed{Hit: hit}, nil
	case protocol.EventPlayerAttack:
		if ev.Attacker == nil || ev.Target == nil {
			return nil, fmt.Errorf("%s: attacker and target required", ev.Event)
		}
		return engine.PlayerAttacked{Attack: policy.Attack{
			Attacker: combatant(*ev.Attacker),
			Target:   combatant(*ev.Target),
			Damage:   ev.Damage,
		}}, nil
	case protocol.EventPlayerDeath:
		return engine.PlayerDied{Actor: ev.Actor}, nil
	case protocol.EventPlayerWakeup:
		return engine.PlayerWokeUp{Actor: ev.Actor}, nil
	case protocol.EventPlayerRespawn:
		return engine.PlayerRespawned{Actor: ev.Actor}, nil
	case protocol.EventPlayerConnected:
		return engine.PlayerConnected{Actor: ev.Actor}, nil
	case protocol.EventZoneEnter:
		return engine.ZoneEntered{Actor: ev.Actor, ZoneID: ev.ZoneID}, nil
	case protocol.EventZoneExit:
		return engine.ZoneExited{Actor: ev.Actor, ZoneID: ev.ZoneID}, nil
	case protocol.EventClanCreate:
		return engine.ClanCreated{Tag: ev.Tag}, nil
	case protocol.EventClanUpdate:
		return engine.ClanUpdated{Tag: ev.Tag}, nil
	case protocol.EventClanDestroy:
		return engine.ClanDestroyed{Tag: ev.Tag}, nil
	}
	return nil, fmt.Errorf("unknown event %q", ev.Event)
}

func combatant(c protocol.CombatantState) policy.Combatant {
	return policy.Combatant{ID: c.ID, Player: c.Player, NPC: c.NPC, Health: c.Health, MaxHealth: c.MaxHealth}
}
