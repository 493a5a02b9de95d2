package config

import (
	"errors"
	"fmt"
	"strings"
)

type rule struct {
	path string
	bad  func(c *Config) bool
	fix  func(c *Config, d Config)
}

var rules = []rule{
	{"raid.block.duration", func(c *Config) bool { return c.Raid.Block.Duration <= 0 }, func(c *Config, d Config) { c.Raid.Block.Duration = d.Raid.Block.Duration }},
	{"raid.block.distance", func(c *Config) bool { return c.Raid.Block.Distance <= 0 }, func(c *Config, d Config) { c.Raid.Block.Distance = d.Raid.Block.Distance }},
	{"raid.blockWhen.damage.minCondition", func(c *Config) bool { return c.Raid.BlockWhen.Damage.MinCondition < 0 }, func(c *Config, d Config) { c.Raid.BlockWhen.Damage.MinCondition = d.Raid.BlockWhen.Damage.MinCondition }},
	{"raid.map.duration", func(c *Config) bool { return c.Raid.Map.Duration <= 0 }, func(c *Config, d Config) { c.Raid.Map.Duration = d.Raid.Map.Duration }},
	{"combat.block.duration", func(c *Config) bool { return c.Combat.Block.Duration <= 0 }, func(c *Config, d Config) { c.Combat.Block.Duration = d.Combat.Block.Duration }},
	{"combat.blockWhen.giveDamage.minDamage", func(c *Config) bool { return c.Combat.BlockWhen.GiveDamage.MinDamage < 0 }, func(c *Config, d Config) { c.Combat.BlockWhen.GiveDamage.MinDamage = d.Combat.BlockWhen.GiveDamage.MinDamage }},
	{"combat.blockWhen.takeDamage.minDamage", func(c *Config) bool { return c.Combat.BlockWhen.TakeDamage.MinDamage < 0 }, func(c *Config, d Config) { c.Combat.BlockWhen.TakeDamage.MinDamage = d.Combat.BlockWhen.TakeDamage.MinDamage }},
	{"settings.cacheMinutes", func(c *Config) bool { return c.Settings.CacheMinutes < 0 }, func(c *Config, d Config) { c.Settings.CacheMinutes = d.Settings.CacheMinutes }},
	{"settings.unblockDelay", func(c *Config) bool { return c.Settings.UnblockDelay < 0 }, func(c *Config, d Config) { c.Settings.UnblockDelay = d.Settings.UnblockDelay }},
	{"settings.tick", func(c *Config) bool { return c.Settings.Tick <= 0 || c.Settings.Tick > 5 }, func(c *Config, d Config) { c.Settings.Tick = d.Settings.Tick }},
}

// repair resets out-of-range values to d's and returns the affected paths.
func (c *Config) repair(d Config) []string {
	var fixed []string
	for _, r := range rules {
		if r.bad(c) {
			r.fix(c, d)
			fixed = append(fixed, r.path)
		}
	}
	return fixed
}

// Validate reports every out-of-range value. Load never returns these; it repairs them.
func (c Config) Validate() error {
	var errs []error
	for _, r := range rules {
		if r.bad(&c) {
			errs = append(errs, fmt.Errorf("%s: out of range", r.path))
		}
	}
	if c.Raid.Block.Enabled && !c.Raid.BlockWho.Everyone && !c.Raid.BlockWho.Owner && !c.Raid.BlockWho.Raider {
		errs = append(errs, errors.New("raid.blockWho: raid block enabled but no block mode set"))
	}
	return errors.Join(errs...)
}

func (c *Config) Normalize() {
	c.Raid.Block.DamageTypes = cleanList(c.Raid.Block.DamageTypes, false)
	c.Raid.Block.IncludePrefabs = cleanList(c.Raid.Block.IncludePrefabs, true)
	c.Raid.Block.ExcludePrefabs = cleanList(c.Raid.Block.ExcludePrefabs, true)
	c.Raid.Block.ExcludeWeapons = cleanList(c.Raid.Block.ExcludeWeapons, true)
	c.Combat.Block.DamageTypes = cleanList(c.Combat.Block.DamageTypes, false)
	c.Settings.Block.Types = cleanList(c.Settings.Block.Types, true)
	c.Raid.Map.Icon = strings.TrimSpace(c.Raid.Map.Icon)
}

func cleanList(in []string, lower bool) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if lower {
			s = strings.ToLower(s)
		}
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
