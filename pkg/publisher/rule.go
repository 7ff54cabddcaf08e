package publisher

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Condition is a CEL expression evaluating to bool. Boolean literals are
// accepted on decode and stored in their CEL spelling.
type Condition string

func (c *Condition) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*c = Condition(strconv.FormatBool(b))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("condition must be a string or boolean: %w", err)
	}
	*c = Condition(s)
	return nil
}

func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: condition must be a scalar", node.Line)
	}
	*c = Condition(node.Value)
	return nil
}

// Rule is one entry of a Ruleset.
type Rule struct {
	Condition   Condition `json:"condition" yaml:"condition" validate:"required,cel_bool"`
	Consequent  *string   `json:"consequent" yaml:"consequent" validate:"omitnil,cel_string"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty" validate:"max=256"`
}

// Ruleset is evaluated top to bottom.
type Ruleset []Rule

// Clone returns a deep copy so callers can never alias a stored snapshot.
func (rs Ruleset) Clone() Ruleset {
	if rs == nil {
		return nil
	}
	out := make(Ruleset, len(rs))
	for i, r := range rs {
		out[i] = r
		if r.Consequent != nil {
			c := *r.Consequent
			out[i].Consequent = &c
		}
	}
	return out
}

// Consequent is a helper for building rules in code.
func Consequent(expr string) *string {
	return &expr
}
