package sanitize

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_table.yaml
var defaultTableYAML []byte

const (
	RuleGeneric = "generic"
	RuleEmpty   = "empty"
)

// Rule maps any of its phrases to a fixed user-facing reply.
type Rule struct {
	Name    string   `yaml:"name"`
	Phrases []string `yaml:"phrases"`
	Reply   string   `yaml:"reply"`
}

// GenericRule catches failure wording no specific rule matched.
type GenericRule struct {
	Words []string `yaml:"words"`
	Reply string   `yaml:"reply"`
}

// Table is the ordered phrase configuration. Earlier rules win.
type Table struct {
	Rules        []Rule      `yaml:"rules"`
	Generic      GenericRule `yaml:"generic"`
	EmptyReply   string      `yaml:"empty_reply"`
	RefusalReply string      `yaml:"refusal_reply"`
}

// ParseTable decodes and validates a YAML phrase table.
func ParseTable(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("parse phrase table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// LoadTable reads a phrase table from path, or the built-in one when path is empty.
func LoadTable(path string) (Table, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return ParseTable(defaultTableYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read phrase table: %w", err)
	}
	return ParseTable(data)
}

// Validate rejects tables that could produce an empty reply.
func (t Table) Validate() error {
	for i, r := range t.Rules {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("phrase table: rule %d has no name", i)
		}
		if len(r.Phrases) == 0 {
			return fmt.Errorf("phrase table: rule %q has no phrases", r.Name)
		}
		for _, p := range r.Phrases {
			if strings.TrimSpace(p) == "" {
				return fmt.Errorf("phrase table: rule %q has a blank phrase", r.Name)
			}
		}
		if strings.TrimSpace(r.Reply) == "" {
			return fmt.Errorf("phrase table: rule %q has no reply", r.Name)
		}
	}
	if len(t.Generic.Words) > 0 && strings.TrimSpace(t.Generic.Reply) == "" {
		return errors.New("phrase table: generic words need a reply")
	}
	if strings.TrimSpace(t.EmptyReply) == "" {
		return errors.New("phrase table: empty_reply is required")
	}
	if strings.TrimSpace(t.RefusalReply) == "" {
		return errors.New("phrase table: refusal_reply is required")
	}
	return nil
}

type compiledRule struct {
	name    string
	phrases []string
	reply   string
}

// Sanitizer maps raw generator text to what the user is shown.
// It holds no mutable state and is safe for concurrent use.
type Sanitizer struct {
	rules        []compiledRule
	genericWords []string
	genericReply string
	emptyReply   string
	refusalReply string
}

// New compiles a validated table.
func New(t Table) (*Sanitizer, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	s := &Sanitizer{
		genericReply: strings.TrimSpace(t.Generic.Reply),
		emptyReply:   strings.TrimSpace(t.EmptyReply),
		refusalReply: strings.TrimSpace(t.RefusalReply),
	}
	for _, r := range t.Rules {
		cr := compiledRule{name: r.Name, reply: strings.TrimSpace(r.Reply)}
		for _, p := range r.Phrases {
			cr.phrases = append(cr.phrases, strings.ToLower(strings.TrimSpace(p)))
		}
		s.rules = append(s.rules, cr)
	}
	for _, w := range t.Generic.Words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			s.genericWords = append(s.genericWords, w)
		}
	}
	return s, nil
}

// Default returns a sanitizer over the built-in table.
func Default() *Sanitizer {
	t, err := ParseTable(defaultTableYAML)
	if err != nil {
		panic(err)
	}
	s, err := New(t)
	if err != nil {
		panic(err)
	}
	return s
}

// Classify returns the name of the matching rule and the reply to show.
// Unmatched non-empty text is returned unchanged with an empty rule name.
func (s *Sanitizer) Classify(raw string) (rule string, reply string) {
	if strings.TrimSpace(raw) == "" {
		return RuleEmpty, s.emptyReply
	}
	lower := strings.ToLower(raw)
	for _, r := range s.rules {
		for _, p := range r.phrases {
			if strings.Contains(lower, p) {
				return r.name, r.reply
			}
		}
	}
	for _, w := range s.genericWords {
		if strings.Contains(lower, w) {
			return RuleGeneric, s.genericReply
		}
	}
	return "", raw
}

// Translate is Classify without the rule name. It never returns an empty string.
func (s *Sanitizer) Translate(raw string) string {
	_, reply := s.Classify(raw)
	return reply
}

// ForRefusal returns the apology for a structured refusal. The reason is
// kept for logs only; users never see backend vocabulary.
func (s *Sanitizer) ForRefusal(string) string {
	return s.refusalReply
}

// ForEmpty returns the apology for a response with no text.
func (s *Sanitizer) ForEmpty() string {
	return s.emptyReply
}
