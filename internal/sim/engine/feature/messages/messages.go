// Package messages renders the player-facing block texts.
package messages

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hako/durafmt"

	"noescape.gg/internal/sim/engine/kernel/model"
)

type Templates struct {
	RaidBlocked    string
	CombatBlocked  string
	RaidComplete   string
	CombatComplete string
	RaidNotifier   string
	CombatNotifier string
	RaidUI         string
	CombatUI       string
	UnitSeconds    string
	UnitMinutes    string
	Prefix         string
	// Units is a durafmt units spec ("year:years,week:weeks,...") for remaining time.
	Units string
}

const DefaultUnits = "year:years,week:weeks,day:days,hour:hours,minute:minutes,second:seconds,millisecond:milliseconds,microsecond:microseconds"

func DefaultTemplates() Templates {
	return Templates{
		RaidBlocked:    "You may not do that while raid blocked ({time})",
		CombatBlocked:  "You may not do that while in combat ({time})",
		RaidComplete:   "You are no longer raid blocked.",
		CombatComplete: "You are no longer combat blocked.",
		RaidNotifier:   "You are raid blocked for {time}",
		CombatNotifier: "You are combat blocked for {time}",
		RaidUI:         "RAID BLOCK",
		CombatUI:       "COMBAT BLOCK",
		UnitSeconds:    "second(s)",
		UnitMinutes:    "minute(s)",
		Prefix:         "",
		Units:          DefaultUnits,
	}
}

type Catalog struct {
	t     Templates
	units durafmt.Units
}

func New(t Templates) *Catalog {
	units, err := durafmt.DefaultUnitsCoder.Decode(t.Units)
	if err != nil {
		units, _ = durafmt.DefaultUnitsCoder.Decode(DefaultUnits)
	}
	return &Catalog{t: t, units: units}
}

func (c *Catalog) Prefix() string {
	if c.t.Prefix == "" {
		return ""
	}
	return c.t.Prefix + ": "
}

// Blocked is the denial text shown when a gated action is refused.
func (c *Catalog) Blocked(kind model.Kind, remaining time.Duration) string {
	tpl := c.t.RaidBlocked
	if kind == model.KindCombat {
		tpl = c.t.CombatBlocked
	}
	return c.Prefix() + strings.ReplaceAll(tpl, "{time}", c.Remaining(remaining))
}

// Remaining renders d rounded to the second, two most significant units.
func (c *Catalog) Remaining(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Second {
		d = time.Second
	}
	return durafmt.Parse(d).LimitFirstN(2).Format(c.units)
}

// Notifier is the start notification, stating the full block duration.
func (c *Catalog) Notifier(kind model.Kind, duration time.Duration) string {
	tpl := c.t.RaidNotifier
	if kind == model.KindCombat {
		tpl = c.t.CombatNotifier
	}
	return c.Prefix() + strings.ReplaceAll(tpl, "{time}", c.Cooldown(duration))
}

// Cooldown renders whole durations the way the notifier always has:
// seconds up to a minute, then minutes to one decimal.
func (c *Catalog) Cooldown(d time.Duration) string {
	secs := d.Seconds()
	if secs > 60 {
		mins := math.Round(secs/60*10) / 10
		return strconv.FormatFloat(mins, 'f', -1, 64) + " " + c.t.UnitMinutes
	}
	return strconv.FormatFloat(secs, 'f', -1, 64) + " " + c.t.UnitSeconds
}

func (c *Catalog) Complete(kind model.Kind) string {
	if kind == model.KindCombat {
		return c.Prefix() + c.t.CombatComplete
	}
	return c.Prefix() + c.t.RaidComplete
}

func (c *Catalog) UILabel(kind model.Kind) string {
	if kind == model.KindCombat {
		return c.t.CombatUI
	}
	return c.t.RaidUI
}
