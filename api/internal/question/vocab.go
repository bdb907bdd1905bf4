package question

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed vocab.yaml
var defaultVocab []byte

// SubjectEntry describes one member of the subject set.
type SubjectEntry struct {
	Code    Subject  `yaml:"code"`
	ZH      string   `yaml:"zh"`
	EN      string   `yaml:"en"`
	Aliases []string `yaml:"aliases"`
}

// Vocabulary is the closed subject set plus the knowledge-tag hints shown to the model.
// It is deployment data: swap the YAML file, not the code.
type Vocabulary struct {
	Fallback Subject              `yaml:"fallback"`
	Subjects []SubjectEntry       `yaml:"subjects"`
	Tags     map[Subject][]string `yaml:"tags"`
	byLabel  map[string]Subject
	byCode   map[Subject]SubjectEntry
}

// DefaultVocabulary returns the embedded vocabulary. It panics only if the embedded file is broken.
func DefaultVocabulary() *Vocabulary {
	v, err := ParseVocabulary(defaultVocab)
	if err != nil {
		panic(err)
	}
	return v
}

// LoadVocabulary reads a YAML vocabulary from path; an empty path yields the embedded default.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultVocabulary(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read vocabulary %s", path)
	}
	v, err := ParseVocabulary(b)
	if err != nil {
		return nil, eris.Wrapf(err, "vocabulary %s", path)
	}
	return v, nil
}

func ParseVocabulary(b []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, eris.Wrap(err, "decode vocabulary")
	}
	if len(v.Subjects) == 0 {
		return nil, eris.New("vocabulary has no subjects")
	}
	if v.Fallback == "" {
		v.Fallback = SubjectOther
	}

	v.byLabel = make(map[string]Subject)
	v.byCode = make(map[Subject]SubjectEntry, len(v.Subjects))
	for _, s := range v.Subjects {
		if s.Code == "" {
			return nil, eris.New("vocabulary subject without code")
		}
		if _, dup := v.byCode[s.Code]; dup {
			return nil, eris.Errorf("duplicate subject code %q", s.Code)
		}
		v.byCode[s.Code] = s

		labels := append([]string{string(s.Code), s.ZH, s.EN}, s.Aliases...)
		for _, l := range labels {
			if l == "" {
				continue
			}
			if prev, ok := v.byLabel[l]; ok && prev != s.Code {
				return nil, eris.Errorf("label %q used by %q and %q", l, prev, s.Code)
			}
			v.byLabel[l] = s.Code
		}
	}
	if _, ok := v.byCode[v.Fallback]; !ok {
		return nil, eris.Errorf("fallback subject %q is not in the vocabulary", v.Fallback)
	}
	return &v, nil
}

// Lookup matches a label exactly, case-sensitively.
func (v *Vocabulary) Lookup(label string) (Subject, bool) {
	s, ok := v.byLabel[label]
	return s, ok
}

// Coerce maps a label to its subject, or to the fallback subject when unknown.
func (v *Vocabulary) Coerce(label string) Subject {
	if s, ok := v.Lookup(label); ok {
		return s
	}
	return v.Fallback
}

func (v *Vocabulary) Contains(s Subject) bool {
	_, ok := v.byCode[s]
	return ok
}

// Label returns the display name of s in lang.
func (v *Vocabulary) Label(s Subject, lang Language) string {
	e, ok := v.byCode[s]
	if !ok {
		return string(s)
	}
	if lang == LanguageEN && e.EN != "" {
		return e.EN
	}
	if e.ZH != "" {
		return e.ZH
	}
	return string(e.Code)
}

// Labels lists the display names of every subject, in file order.
func (v *Vocabulary) Labels(lang Language) []string {
	out := make([]string, 0, len(v.Subjects))
	for _, s := range v.Subjects {
		out = append(out, v.Label(s.Code, lang))
	}
	return out
}

func (v *Vocabulary) TagHints(s Subject) []string {
	return v.Tags[s]
}
