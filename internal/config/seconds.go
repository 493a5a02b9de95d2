package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// Seconds is a duration written as bare seconds (300, 0.3) or a Go duration string ("5m").
type Seconds float64

func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

func (s *Seconds) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected seconds or duration", n.Line)
	}
	switch n.ShortTag() {
	case "!!int", "!!float":
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		*s = Seconds(v)
		return nil
	case "!!str":
		d, err := time.ParseDuration(n.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		*s = Seconds(d.Seconds())
		return nil
	}
	return fmt.Errorf("line %d: expected seconds or duration, got %s", n.Line, n.ShortTag())
}

func (s Seconds) MarshalYAML() (any, error) {
	return float64(s), nil
}

func (Seconds) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "number", Description: "seconds"},
			{Type: "string", Description: "duration such as 5m or 300ms"},
		},
	}
}
