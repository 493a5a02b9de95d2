package config

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 300*time.Second, cfg.Raid.Block.Duration.Duration())
	require.Equal(t, 300*time.Millisecond, cfg.Settings.UnblockDelay.Duration())
	require.Equal(t, time.Minute, cfg.Settings.CacheTTL())
	require.True(t, cfg.Raid.BlockExcept.Owner)
	require.Contains(t, cfg.Settings.Block.Types, "tp")
}

func TestDecodeLeafFallback(t *testing.T) {
	raw := []byte(`
raid:
  block:
    enabled: false
    duration: "5m"
    distance: far
    damageTypes: [Explosion, " Heat ", Explosion]
  blockWho: [1, 2]
combat:
  block:
    duration: 90
  blockWhen:
    giveDamage:
      enabled: true
      minDamage: -3
settings:
  unblockDelay: 500ms
  bogus: 1
`)
	cfg, rep := Decode(raw)

	require.False(t, cfg.Raid.Block.Enabled)
	require.Equal(t, Seconds(300), cfg.Raid.Block.Duration)
	require.Equal(t, 100.0, cfg.Raid.Block.Distance, "mistyped leaf keeps its default")
	require.Equal(t, []string{"Explosion", "Heat"}, cfg.Raid.Block.DamageTypes)
	require.True(t, cfg.Raid.BlockWho.Everyone, "non-mapping section keeps defaults")
	require.Equal(t, 90*time.Second, cfg.Combat.Block.Duration.Duration())
	require.True(t, cfg.Combat.BlockWhen.GiveDamage.Enabled)
	require.Equal(t, 1.0, cfg.Combat.BlockWhen.GiveDamage.MinDamage)
	require.Equal(t, 500*time.Millisecond, cfg.Settings.UnblockDelay.Duration())

	require.ElementsMatch(t, []string{
		"raid.block.distance",
		"raid.blockWho",
		"combat.blockWhen.giveDamage.minDamage",
	}, rep.Repaired)
	require.Contains(t, rep.Missing, "raid.block.notify")
	require.Contains(t, rep.Missing, "notifications.guiAnnouncements.textColor")
	require.NotContains(t, rep.Missing, "raid.block.duration")
	require.Equal(t, []string{"settings.bogus"}, rep.Unknown)
}

func TestDecodeBrokenDocument(t *testing.T) {
	cfg, rep := Decode([]byte("raid: [unterminated"))
	require.Equal(t, Default(), cfg)
	require.Equal(t, []string{"."}, rep.Repaired)

	cfg, rep = Decode(nil)
	require.Equal(t, Default(), cfg)
	require.True(t, rep.Dirty())
}

func TestLoadOrInitWritesBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noescape.yaml")
	var logs bytes.Buffer
	logger := log.New(&logs, "", 0)

	_, rep, err := LoadOrInit(path, logger)
	require.NoError(t, err)
	require.True(t, rep.Created)
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("raid:\n  block:\n    duration: soon\n"), 0o644))
	cfg, rep, err := LoadOrInit(path, logger)
	require.NoError(t, err)
	require.Equal(t, []string{"raid.block.duration"}, rep.Repaired)
	require.Equal(t, Seconds(300), cfg.Raid.Block.Duration)
	require.Contains(t, logs.String(), "config: raid.block.duration invalid; using default")

	_, rep, err = Load(path)
	require.NoError(t, err)
	require.False(t, rep.Dirty(), "written-back file must load clean: %+v", rep)
}

func TestLoadOrInitKeepsBackupOfBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noescape.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o644))
	_, _, err := LoadOrInit(path, nil)
	require.NoError(t, err)
	bak, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	require.Equal(t, "{{{", string(bak))
}

func TestValidateReportsModeless(t *testing.T) {
	cfg := Default()
	cfg.Raid.BlockWho = BlockWho{}
	cfg.Settings.Tick = 0
	err := cfg.Validate()
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "settings.tick"))
	require.True(t, strings.Contains(err.Error(), "no block mode"))
}

func TestSchemaCheck(t *testing.T) {
	b, err := SchemaJSON()
	require.NoError(t, err)
	require.Contains(t, string(b), "cupboardAuthorized")

	require.NoError(t, Check([]byte("raid:\n  block:\n    duration: 5m\n    distance: 50\n")))
	require.Error(t, Check([]byte("raid:\n  block:\n    distance: far\n")))
	require.Error(t, Check([]byte("raid:\n  blok: {}\n")))
}
