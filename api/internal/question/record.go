package question

// Subject is a member of the closed subject set configured by the Vocabulary.
type Subject string

const (
	SubjectMath      Subject = "math"
	SubjectPhysics   Subject = "physics"
	SubjectChemistry Subject = "chemistry"
	SubjectBiology   Subject = "biology"
	SubjectEnglish   Subject = "english"
	SubjectChinese   Subject = "chinese"
	SubjectHistory   Subject = "history"
	SubjectGeography Subject = "geography"
	SubjectPolitics  Subject = "politics"
	SubjectOther     Subject = "other"
)

func (s Subject) String() string { return string(s) }

// Record is the normalized question extracted from a model response.
// It is only handed out once QuestionText, AnswerText and Analysis are non-empty
// and Subject belongs to the vocabulary.
type Record struct {
	QuestionText    string   `json:"questionText" validate:"required"`
	AnswerText      string   `json:"answerText" validate:"required"`
	Analysis        string   `json:"analysis" validate:"required"`
	Subject         Subject  `json:"subject" validate:"required,subject"`
	KnowledgePoints []string `json:"knowledgePoints"`
}

// Language of the generated text.
type Language string

const (
	LanguageZH Language = "zh"
	LanguageEN Language = "en"
)

// ParseLanguage falls back to zh for anything it does not know.
func ParseLanguage(s string) Language {
	if Language(s) == LanguageEN {
		return LanguageEN
	}
	return LanguageZH
}

// Difficulty of a generated practice question relative to the original.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyHarder Difficulty = "harder"
)

// ParseDifficulty falls back to medium.
func ParseDifficulty(s string) Difficulty {
	switch d := Difficulty(s); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyHarder:
		return d
	default:
		return DifficultyMedium
	}
}
