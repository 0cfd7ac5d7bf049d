package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Field names a part of an email a rule can inspect
type Field string

const (
	FieldSubject Field = "Subject"
	FieldBody    Field = "Body"
	FieldPDF     Field = "PDF"
)

// Operator is the instruction half of a rule condition
type Operator string

const (
	OpExists           Operator = "Exists"
	OpNotExists        Operator = "Does not Exist"
	OpContains         Operator = "Contains"
	OpNotContains      Operator = "Does not contain"
	OpStartsWith       Operator = "Starts with"
	OpEndsWith         Operator = "Ends with"
	OpContainsPattern  Operator = "Contains pattern"
	OpContainsSkill    Operator = "Contains skill"
	OpNotContainsSkill Operator = "Does not contain skill"
)

const labelActionKey = "Label Action"

// knownOperators is ordered longest first so "Contains pattern" wins over "Contains".
var knownOperators = func() []Operator {
	ops := []Operator{
		OpExists, OpNotExists, OpContains, OpNotContains, OpStartsWith,
		OpEndsWith, OpContainsPattern, OpContainsSkill, OpNotContainsSkill,
	}
	sort.SliceStable(ops, func(i, j int) bool { return len(ops[i]) > len(ops[j]) })
	return ops
}()

// Condition is a single field instruction such as ["Contains", "Resume"]
type Condition struct {
	Operator Operator
	Value    string
}

// Known reports whether the operator is one the rule engine understands
func (c Condition) Known() bool {
	for _, op := range knownOperators {
		if c.Operator == op {
			return true
		}
	}
	return false
}

// Valid reports whether the condition can be evaluated: a known operator with
// its operand when it needs one.
func (c Condition) Valid() bool {
	if !c.Known() {
		return false
	}
	return !c.Operator.NeedsValue() || strings.TrimSpace(c.Value) != ""
}

// ParseCondition builds a condition from its one- or two-element array form.
// The operand may be inline ("Contains skill Java") or the second element.
func ParseCondition(parts []string) (Condition, error) {
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		return Condition{}, fmt.Errorf("empty condition")
	}

	head := strings.TrimSpace(parts[0])
	rest := strings.TrimSpace(strings.Join(parts[1:], " "))

	op, inline, ok := splitOperator(head)
	if !ok {
		return Condition{Operator: Operator(head), Value: unquote(rest)}, nil
	}

	value := unquote(inline)
	if rest != "" {
		if value != "" {
			value += " " + unquote(rest)
		} else {
			value = unquote(rest)
		}
	}

	if value == "" && op.NeedsValue() {
		return Condition{}, fmt.Errorf("%q needs a value", op)
	}

	return Condition{Operator: op, Value: value}, nil
}

// NeedsValue reports whether the operator compares against an operand
func (op Operator) NeedsValue() bool {
	switch op {
	case OpExists, OpNotExists:
		return false
	}
	return true
}

func splitOperator(head string) (Operator, string, bool) {
	lower := strings.ToLower(head)
	for _, op := range knownOperators {
		name := strings.ToLower(string(op))
		if !strings.HasPrefix(lower, name) {
			continue
		}
		if len(lower) == len(name) {
			return op, "", true
		}
		if next := lower[len(name)]; next == ' ' || next == ':' {
			return op, strings.TrimSpace(strings.TrimLeft(head[len(name):], " :")), true
		}
	}
	return "", "", false
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// Parts returns the array form used on the wire
func (c Condition) Parts() []string {
	if c.Value == "" {
		return []string{string(c.Operator)}
	}
	return []string{string(c.Operator), c.Value}
}

func (c Condition) String() string {
	if c.Value == "" {
		return string(c.Operator)
	}
	return fmt.Sprintf("%s %q", c.Operator, c.Value)
}

// MarshalJSON implements json.Marshaler
func (c Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Parts())
}

// UnmarshalJSON accepts either ["Op", "value"] or "Op value"
func (c *Condition) UnmarshalJSON(data []byte) error {
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		var single string
		if err2 := json.Unmarshal(data, &single); err2 != nil {
			return fmt.Errorf("condition must be a string or string array: %w", err)
		}
		parts = []string{single}
	}

	parsed, err := ParseCondition(parts)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Rule maps email fields to conditions and names the label to apply when all of them hold
type Rule struct {
	Subject     *Condition
	Body        *Condition
	PDF         *Condition
	LabelAction string
}

// FieldCondition pairs a field with its condition
type FieldCondition struct {
	Field     Field
	Condition Condition
}

// Conditions returns the rule's conditions in Subject, Body, PDF order
func (r Rule) Conditions() []FieldCondition {
	var out []FieldCondition
	if r.Subject != nil {
		out = append(out, FieldCondition{FieldSubject, *r.Subject})
	}
	if r.Body != nil {
		out = append(out, FieldCondition{FieldBody, *r.Body})
	}
	if r.PDF != nil {
		out = append(out, FieldCondition{FieldPDF, *r.PDF})
	}
	return out
}

func (r Rule) String() string {
	conds := r.Conditions()
	parts := make([]string, 0, len(conds))
	for _, fc := range conds {
		parts = append(parts, fmt.Sprintf("%s %s", fc.Field, fc.Condition))
	}
	if len(parts) == 0 {
		parts = append(parts, "(no conditions)")
	}
	return fmt.Sprintf("%s => %q", strings.Join(parts, " AND "), r.LabelAction)
}

type ruleJSON struct {
	Subject     *Condition `json:"Subject,omitempty"`
	Body        *Condition `json:"Body,omitempty"`
	PDF         *Condition `json:"PDF,omitempty"`
	LabelAction []string   `json:"Label Action"`
}

// MarshalJSON implements json.Marshaler using the LLM rule format
func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(ruleJSON{
		Subject:     r.Subject,
		Body:        r.Body,
		PDF:         r.PDF,
		LabelAction: []string{r.LabelAction},
	})
}

// UnmarshalJSON implements json.Unmarshaler. Keys are matched case-insensitively and
// "Label Action" may be a string or a one-element array.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var rule Rule
	for key, value := range raw {
		switch normalizeKey(key) {
		case "subject":
			c, err := decodeCondition(value)
			if err != nil {
				return fmt.Errorf("subject condition: %w", err)
			}
			rule.Subject = c
		case "body":
			c, err := decodeCondition(value)
			if err != nil {
				return fmt.Errorf("body condition: %w", err)
			}
			rule.Body = c
		case "pdf":
			c, err := decodeCondition(value)
			if err != nil {
				return fmt.Errorf("pdf condition: %w", err)
			}
			rule.PDF = c
		case "labelaction", "label", "action":
			label, err := decodeLabel(value)
			if err != nil {
				return fmt.Errorf("label action: %w", err)
			}
			rule.LabelAction = label
		}
	}

	if rule.LabelAction == "" {
		return fmt.Errorf("rule has no %s", labelActionKey)
	}

	*r = rule
	return nil
}

func normalizeKey(key string) string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, " ", "")
	return strings.ReplaceAll(key, "_", "")
}

func decodeCondition(value json.RawMessage) (*Condition, error) {
	switch strings.TrimSpace(string(value)) {
	case "null", "[]", `""`:
		return nil, nil
	}
	var c Condition
	if err := json.Unmarshal(value, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func decodeLabel(value json.RawMessage) (string, error) {
	var parts []string
	if err := json.Unmarshal(value, &parts); err == nil {
		return strings.TrimSpace(strings.Join(parts, " ")), nil
	}
	var single string
	if err := json.Unmarshal(value, &single); err != nil {
		return "", fmt.Errorf("label must be a string or string array")
	}
	return strings.TrimSpace(single), nil
}
