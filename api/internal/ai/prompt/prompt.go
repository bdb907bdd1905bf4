// Package prompt renders the instructions sent to the AI backends.
//
// Templates are embedded; a file named <name>.tmpl in the override directory
// (PROMPT_DIR) replaces the embedded one of the same name. Subject names and
// tag hints come from the vocabulary, never from the templates.
package prompt

import (
	"bytes"
	"embed"
	"regexp"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"

	"errbook/api/internal/question"
	"errbook/api/internal/util"
)

//go:embed templates/*.tmpl
var embedded embed.FS

var templateNames = []string{"format", "analyze", "similar"}

// Format selects how the model is told to shape its answer.
type Format string

const (
	FormatJSON Format = "json"
	FormatTags Format = "tags"
)

// Options are the optional parts of a prompt.
type Options struct {
	Format        Format
	Grade         int // 7..12, anything else is ignored
	SubjectHint   question.Subject
	ProviderHints string
}

type Builder struct {
	vocab *question.Vocabulary
	t     *template.Template
}

// New loads the templates, preferring files in dir over the embedded ones.
func New(vocab *question.Vocabulary, dir string) (*Builder, error) {
	if vocab == nil {
		vocab = question.DefaultVocabulary()
	}
	root := template.New("prompt").Funcs(template.FuncMap{
		"join":  strings.Join,
		"upper": func(d question.Difficulty) string { return strings.ToUpper(string(d)) },
	})
	for _, name := range templateNames {
		src, ok, err := util.ReadPromptFile(dir, name)
		if err != nil {
			return nil, eris.Wrapf(err, "read prompt %s", name)
		}
		if !ok {
			b, err := embedded.ReadFile("templates/" + name + ".tmpl")
			if err != nil {
				return nil, eris.Wrapf(err, "embedded prompt %s", name)
			}
			src = string(b)
		}
		if _, err := root.New(name + ".tmpl").Parse(src); err != nil {
			return nil, eris.Wrapf(err, "parse prompt %s", name)
		}
	}
	return &Builder{vocab: vocab, t: root}, nil
}

// Must is New for the embedded templates only.
func Must(vocab *question.Vocabulary) *Builder {
	b, err := New(vocab, "")
	if err != nil {
		panic(err)
	}
	return b
}

type tagGroup struct {
	Label string
	Tags  []string
}

type data struct {
	Language      question.Language
	Format        Format
	Subjects      []string
	Tags          []tagGroup
	Grade         int
	SubjectHint   string
	ProviderHints string

	OriginalQuestion      string
	KnowledgePoints       []string
	Difficulty            question.Difficulty
	DifficultyInstruction string
}

var difficultyInstructions = map[question.Difficulty]string{
	question.DifficultyEasy:   "Make the new question EASIER than the original. Use simpler numbers and more direct concepts.",
	question.DifficultyMedium: "Keep the difficulty SIMILAR to the original question.",
	question.DifficultyHard:   "Make the new question HARDER than the original. Combine several concepts or use more complex numbers.",
	question.DifficultyHarder: "Make the new question MUCH HARDER, at challenge level. Require deeper understanding and multi-step reasoning.",
}

// Analyze renders the instructions for reading a question off an image.
func (b *Builder) Analyze(lang question.Language, opts Options) (string, error) {
	return b.render("analyze.tmpl", b.base(lang, opts))
}

// Similar renders the instructions for a new practice question.
func (b *Builder) Similar(lang question.Language, originalQuestion string, knowledgePoints []string, d question.Difficulty, opts Options) (string, error) {
	d = question.ParseDifficulty(string(d))
	v := b.base(lang, opts)
	v.OriginalQuestion = strings.TrimSpace(originalQuestion)
	v.KnowledgePoints = knowledgePoints
	v.Difficulty = d
	v.DifficultyInstruction = difficultyInstructions[d]
	return b.render("similar.tmpl", v)
}

func (b *Builder) base(lang question.Language, opts Options) data {
	lang = question.ParseLanguage(string(lang))
	if opts.Format != FormatTags {
		opts.Format = FormatJSON
	}
	d := data{
		Language:      lang,
		Format:        opts.Format,
		Subjects:      b.vocab.Labels(lang),
		ProviderHints: strings.TrimSpace(opts.ProviderHints),
	}
	if opts.Grade >= 7 && opts.Grade <= 12 {
		d.Grade = opts.Grade
	}
	if opts.SubjectHint != "" && b.vocab.Contains(opts.SubjectHint) {
		d.SubjectHint = b.vocab.Label(opts.SubjectHint, lang)
	}
	for _, s := range b.vocab.Subjects {
		if tags := b.vocab.TagHints(s.Code); len(tags) > 0 {
			d.Tags = append(d.Tags, tagGroup{Label: b.vocab.Label(s.Code, lang), Tags: tags})
		}
	}
	return d
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

func (b *Builder) render(name string, d data) (string, error) {
	var buf bytes.Buffer
	if err := b.t.ExecuteTemplate(&buf, name, d); err != nil {
		return "", eris.Wrapf(err, "render prompt %s", name)
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(buf.String(), "\n\n")), nil
}
