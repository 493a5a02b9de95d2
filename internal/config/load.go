package config

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadReport lists what Load had to fix. Paths are dotted yaml keys.
type LoadReport struct {
	Path     string
	Created  bool
	Repaired []string
	Missing  []string
	Unknown  []string
}

// Dirty reports whether the file on disk differs from the loaded config.
func (r LoadReport) Dirty() bool {
	return r.Created || len(r.Repaired) > 0 || len(r.Missing) > 0
}

// Load reads path over the defaults. It only fails on I/O errors; a broken
// document or leaf keeps the default and is listed in the report.
func Load(path string) (Config, LoadReport, error) {
	cfg := defaults()
	rep := LoadReport{Path: path}
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, rep, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		rep.Created = true
		cfg.Normalize()
		return cfg, rep, nil
	}
	if err != nil {
		return cfg, rep, fmt.Errorf("noescape.yaml: %w", err)
	}
	cfg, rep = Decode(b)
	rep.Path = path
	return cfg, rep, nil
}

// Decode applies raw yaml over the defaults, leaf by leaf.
func Decode(raw []byte) (Config, LoadReport) {
	cfg := defaults()
	var rep LoadReport
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		rep.Repaired = append(rep.Repaired, ".")
		cfg.Normalize()
		return cfg, rep
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind == 0 || (root.Kind == yaml.ScalarNode && root.Tag == "!!null") {
		rep.Missing = append(rep.Missing, ".")
		cfg.Normalize()
		return cfg, rep
	}
	decodeStruct(root, reflect.ValueOf(&cfg).Elem(), "", &rep)
	def := defaults()
	rep.Repaired = append(rep.Repaired, cfg.repair(def)...)
	cfg.Normalize()
	sort.Strings(rep.Unknown)
	return cfg, rep
}

var unmarshalerType = reflect.TypeOf((*yaml.Unmarshaler)(nil)).Elem()

func isLeaf(t reflect.Type) bool {
	if t.Kind() != reflect.Struct {
		return true
	}
	return reflect.PointerTo(t).Implements(unmarshalerType)
}

func yamlName(f reflect.StructField) string {
	tag := f.Tag.Get("yaml")
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return strings.ToLower(f.Name)
	}
	return name
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func decodeStruct(n *yaml.Node, v reflect.Value, prefix string, rep *LoadReport) {
	if n.Kind != yaml.MappingNode {
		rep.Repaired = append(rep.Repaired, prefix)
		return
	}
	byKey := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		byKey[n.Content[i].Value] = n.Content[i+1]
	}
	t := v.Type()
	known := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := yamlName(f)
		known[name] = true
		path := join(prefix, name)
		sub, ok := byKey[name]
		if !ok {
			if isLeaf(f.Type) {
				rep.Missing = append(rep.Missing, path)
			} else {
				collectLeaves(f.Type, path, &rep.Missing)
			}
			continue
		}
		fv := v.Field(i)
		if !isLeaf(f.Type) {
			decodeStruct(sub, fv, path, rep)
			continue
		}
		if sub.Kind == yaml.ScalarNode && sub.Tag == "!!null" {
			rep.Repaired = append(rep.Repaired, path)
			continue
		}
		tmp := reflect.New(f.Type)
		if err := sub.Decode(tmp.Interface()); err != nil {
			rep.Repaired = append(rep.Repaired, path)
			continue
		}
		fv.Set(tmp.Elem())
	}
	for key := range byKey {
		if !known[key] {
			rep.Unknown = append(rep.Unknown, join(prefix, key))
		}
	}
}

func collectLeaves(t reflect.Type, prefix string, out *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		path := join(prefix, yamlName(f))
		if isLeaf(f.Type) {
			*out = append(*out, path)
			continue
		}
		collectLeaves(f.Type, path, out)
	}
}

// Encode renders cfg as yaml with two-space indentation.
func Encode(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes cfg to path atomically.
func Save(path string, cfg Config) error {
	b, err := Encode(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadOrInit loads path and writes the repaired config back when anything was
// missing, repaired, or the file did not exist. A document that failed to parse
// is kept next to it as path.bak.
func LoadOrInit(path string, logger *log.Logger) (Config, LoadReport, error) {
	cfg, rep, err := Load(path)
	if err != nil {
		return cfg, rep, err
	}
	if logger != nil {
		for _, p := range rep.Repaired {
			logger.Printf("config: %s invalid; using default", p)
		}
		for _, p := range rep.Unknown {
			logger.Printf("config: %s unknown; ignored", p)
		}
	}
	if !rep.Dirty() || strings.TrimSpace(path) == "" {
		return cfg, rep, nil
	}
	for _, p := range rep.Repaired {
		if p == "." {
			if b, err := os.ReadFile(path); err == nil {
				_ = os.WriteFile(path+".bak", b, 0o644)
			}
			break
		}
	}
	if err := Save(path, cfg); err != nil {
		return cfg, rep, fmt.Errorf("write back %s: %w", path, err)
	}
	if logger != nil {
		switch {
		case rep.Created:
			logger.Printf("config: wrote defaults to %s", path)
		default:
			logger.Printf("config: updated %s (%d missing, %d repaired)", path, len(rep.Missing), len(rep.Repaired))
		}
	}
	return cfg, rep, nil
}
