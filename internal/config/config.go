// Package config loads noescape.yaml. Every leaf falls back to its default on its own,
// so one bad key never costs the rest of the file.
package config

import (
	"time"

	"noescape.gg/internal/sim/engine/feature/gating"
	"noescape.gg/internal/sim/engine/feature/messages"
)

type Config struct {
	Raid          Raid          `yaml:"raid" json:"raid"`
	Combat        Combat        `yaml:"combat" json:"combat"`
	Settings      Settings      `yaml:"settings" json:"settings"`
	Notifications Notifications `yaml:"notifications" json:"notifications"`
	Messages      Messages      `yaml:"messages" json:"messages"`
}

type Raid struct {
	Block       RaidBlock     `yaml:"block" json:"block"`
	BlockWhen   RaidBlockWhen `yaml:"blockWhen" json:"blockWhen"`
	BlockWho    BlockWho      `yaml:"blockWho" json:"blockWho"`
	BlockExcept BlockExcept   `yaml:"blockExcept" json:"blockExcept"`
	Zone        Zone          `yaml:"zone" json:"zone"`
	Map         Map           `yaml:"map" json:"map"`
	UnblockWhen UnblockWhen   `yaml:"unblockWhen" json:"unblockWhen"`
}

type RaidBlock struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	Duration       Seconds  `yaml:"duration" json:"duration"`
	Distance       float64  `yaml:"distance" json:"distance"`
	Notify         bool     `yaml:"notify" json:"notify"`
	DamageTypes    []string `yaml:"damageTypes" json:"damageTypes"`
	IncludePrefabs []string `yaml:"includePrefabs" json:"includePrefabs"`
	ExcludePrefabs []string `yaml:"excludePrefabs" json:"excludePrefabs"`
	ExcludeWeapons []string `yaml:"excludeWeapons" json:"excludeWeapons"`
}

type Condition struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	MinCondition float64 `yaml:"minCondition" json:"minCondition"`
}

type RaidBlockWhen struct {
	Damage  Condition `yaml:"damage" json:"damage"`
	Destroy bool      `yaml:"destroy" json:"destroy"`
	Unowned bool      `yaml:"unowned" json:"unowned"`
}

type BlockWho struct {
	Everyone           bool `yaml:"everyone" json:"everyone"`
	Owner              bool `yaml:"owner" json:"owner"`
	CupboardAuthorized bool `yaml:"cupboardAuthorized" json:"cupboardAuthorized"`
	Clan               bool `yaml:"clan" json:"clan"`
	Friends            bool `yaml:"friends" json:"friends"`
	Raider             bool `yaml:"raider" json:"raider"`
}

type BlockExcept struct {
	Owner   bool `yaml:"owner" json:"owner"`
	Friends bool `yaml:"friends" json:"friends"`
	Clan    bool `yaml:"clan" json:"clan"`
}

type Zone struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Enter   bool `yaml:"enter" json:"enter"`
	Leave   bool `yaml:"leave" json:"leave"`
}

type Map struct {
	Enabled  bool    `yaml:"enabled" json:"enabled"`
	Icon     string  `yaml:"icon" json:"icon"`
	Duration Seconds `yaml:"duration" json:"duration"`
}

type UnblockWhen struct {
	Death   bool `yaml:"death" json:"death"`
	Wakeup  bool `yaml:"wakeup" json:"wakeup"`
	Respawn bool `yaml:"respawn" json:"respawn"`
}

type Combat struct {
	Block       CombatBlock     `yaml:"block" json:"block"`
	BlockWhen   CombatBlockWhen `yaml:"blockWhen" json:"blockWhen"`
	UnblockWhen UnblockWhen     `yaml:"unblockWhen" json:"unblockWhen"`
}

type CombatBlock struct {
	Enabled     bool     `yaml:"enabled" json:"enabled"`
	Duration    Seconds  `yaml:"duration" json:"duration"`
	Notify      bool     `yaml:"notify" json:"notify"`
	DamageTypes []string `yaml:"damageTypes" json:"damageTypes"`
}

type DamageCondition struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	MinCondition float64 `yaml:"minCondition" json:"minCondition"`
	MinDamage    float64 `yaml:"minDamage" json:"minDamage"`
}

type CombatBlockWhen struct {
	GiveDamage    DamageCondition `yaml:"giveDamage" json:"giveDamage"`
	TakeDamage    DamageCondition `yaml:"takeDamage" json:"takeDamage"`
	NPCGiveDamage bool            `yaml:"npcGiveDamage" json:"npcGiveDamage"`
	NPCTakeDamage bool            `yaml:"npcTakeDamage" json:"npcTakeDamage"`
}

type Settings struct {
	CacheMinutes float64      `yaml:"cacheMinutes" json:"cacheMinutes"`
	UnblockDelay Seconds      `yaml:"unblockDelay" json:"unblockDelay"`
	Tick         Seconds      `yaml:"tick" json:"tick"`
	Block        BlockTypes   `yaml:"block" json:"block"`
	Integrations Integrations `yaml:"integrations" json:"integrations"`
}

type BlockTypes struct {
	Types []string `yaml:"types" json:"types"`
}

// Integrations declares which optional host services exist. A feature whose
// service is missing is turned off at startup.
type Integrations struct {
	Friends          bool `yaml:"friends" json:"friends"`
	Clans            bool `yaml:"clans" json:"clans"`
	ZoneManager      bool `yaml:"zoneManager" json:"zoneManager"`
	GUIAnnouncements bool `yaml:"guiAnnouncements" json:"guiAnnouncements"`
	Map              bool `yaml:"map" json:"map"`
}

type Notifications struct {
	UI               bool             `yaml:"ui" json:"ui"`
	Chat             bool             `yaml:"chat" json:"chat"`
	GUIAnnouncements GUIAnnouncements `yaml:"guiAnnouncements" json:"guiAnnouncements"`
}

type GUIAnnouncements struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	BackgroundColor string `yaml:"backgroundColor" json:"backgroundColor"`
	TextColor       string `yaml:"textColor" json:"textColor"`
}

type Messages struct {
	RaidBlocked    string `yaml:"raidBlocked" json:"raidBlocked"`
	CombatBlocked  string `yaml:"combatBlocked" json:"combatBlocked"`
	RaidComplete   string `yaml:"raidComplete" json:"raidComplete"`
	CombatComplete string `yaml:"combatComplete" json:"combatComplete"`
	RaidNotifier   string `yaml:"raidNotifier" json:"raidNotifier"`
	CombatNotifier string `yaml:"combatNotifier" json:"combatNotifier"`
	RaidUI         string `yaml:"raidUI" json:"raidUI"`
	CombatUI       string `yaml:"combatUI" json:"combatUI"`
	UnitSeconds    string `yaml:"unitSeconds" json:"unitSeconds"`
	UnitMinutes    string `yaml:"unitMinutes" json:"unitMinutes"`
	Prefix         string `yaml:"prefix" json:"prefix"`
	Units          string `yaml:"units" json:"units"`
}

func (m Messages) Templates() messages.Templates {
	return messages.Templates{
		RaidBlocked:    m.RaidBlocked,
		CombatBlocked:  m.CombatBlocked,
		RaidComplete:   m.RaidComplete,
		CombatComplete: m.CombatComplete,
		RaidNotifier:   m.RaidNotifier,
		CombatNotifier: m.CombatNotifier,
		RaidUI:         m.RaidUI,
		CombatUI:       m.CombatUI,
		UnitSeconds:    m.UnitSeconds,
		UnitMinutes:    m.UnitMinutes,
		Prefix:         m.Prefix,
		Units:          m.Units,
	}
}

func (s Settings) CacheTTL() time.Duration {
	return time.Duration(s.CacheMinutes * float64(time.Minute))
}

// Default returns the stock configuration.
func Default() Config {
	return defaults()
}

func defaults() Config {
	tpl := messages.DefaultTemplates()
	unblock := UnblockWhen{Death: true, Wakeup: false, Respawn: true}
	return Config{
		Raid: Raid{
			Block: RaidBlock{
				Enabled:        true,
				Duration:       300,
				Distance:       100,
				Notify:         true,
				DamageTypes:    []string{"Bullet", "Blunt", "Stab", "Slash", "Explosion", "Heat"},
				IncludePrefabs: []string{"door", "window.bars", "floor.ladder.hatch", "floor.frame", "wall.frame", "shutter", "external"},
				ExcludePrefabs: []string{"ladder.wooden"},
				ExcludeWeapons: []string{"torch"},
			},
			BlockWhen:   RaidBlockWhen{Damage: Condition{Enabled: true, MinCondition: 100}, Destroy: true, Unowned: false},
			BlockWho:    BlockWho{Everyone: true},
			BlockExcept: BlockExcept{Owner: true},
			Zone:        Zone{Enabled: false, Enter: true, Leave: false},
			Map:         Map{Enabled: false, Icon: "special", Duration: 150},
			UnblockWhen: unblock,
		},
		Combat: Combat{
			Block: CombatBlock{
				Enabled:     false,
				Duration:    180,
				Notify:      true,
				DamageTypes: []string{"Bullet", "Arrow", "Blunt", "Stab", "Slash", "Explosion", "Heat", "ElectricShock"},
			},
			BlockWhen: CombatBlockWhen{
				GiveDamage: DamageCondition{Enabled: false, MinCondition: 100, MinDamage: 1},
				TakeDamage: DamageCondition{Enabled: false, MinCondition: 100, MinDamage: 1},
			},
			UnblockWhen: unblock,
		},
		Settings: Settings{
			CacheMinutes: 1,
			UnblockDelay: 0.3,
			Tick:         0.1,
			Block:        BlockTypes{Types: gating.DefaultTypes()},
			Integrations: Integrations{Friends: true, Clans: true, ZoneManager: true, GUIAnnouncements: true, Map: true},
		},
		Notifications: Notifications{
			UI:               true,
			Chat:             true,
			GUIAnnouncements: GUIAnnouncements{Enabled: false, BackgroundColor: "Red", TextColor: "White"},
		},
		Messages: Messages{
			RaidBlocked:    tpl.RaidBlocked,
			CombatBlocked:  tpl.CombatBlocked,
			RaidComplete:   tpl.RaidComplete,
			CombatComplete: tpl.CombatComplete,
			RaidNotifier:   tpl.RaidNotifier,
			CombatNotifier: tpl.CombatNotifier,
			RaidUI:         tpl.RaidUI,
			CombatUI:       tpl.CombatUI,
			UnitSeconds:    tpl.UnitSeconds,
			UnitMinutes:    tpl.UnitMinutes,
			Prefix:         tpl.Prefix,
			Units:          tpl.Units,
		},
	}
}
