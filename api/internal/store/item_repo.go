package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"

	"errbook/api/internal/question"
)

// StringList is stored as a JSON array in a text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return fmt.Errorf("StringList: unsupported type %T", src)
	}
	out := StringList{}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &out); err != nil {
			return err
		}
	}
	*l = out
	return nil
}

// Item is one saved wrong question.
type Item struct {
	ID               string           `db:"id" json:"id"`
	OwnerID          string           `db:"owner_id" json:"ownerId"`
	Subject          question.Subject `db:"subject" json:"subject"`
	QuestionText     string           `db:"question_text" json:"questionText"`
	AnswerText       string           `db:"answer_text" json:"answerText"`
	Analysis         string           `db:"analysis" json:"analysis"`
	KnowledgePoints  StringList       `db:"knowledge_points" json:"knowledgePoints"`
	OriginalImageURL string           `db:"original_image_url" json:"originalImageUrl,omitempty"`
	GradeSemester    string           `db:"grade_semester" json:"gradeSemester,omitempty"`
	PaperLevel       string           `db:"paper_level" json:"paperLevel,omitempty"`
	MasteryLevel     int              `db:"mastery_level" json:"masteryLevel"`
	CreatedAt        time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updatedAt"`

	Tags []Tag `db:"-" json:"tags"`
}

// Record returns the canonical question held by the item.
func (it *Item) Record() question.Record {
	return question.Record{
		QuestionText:    it.QuestionText,
		AnswerText:      it.AnswerText,
		Analysis:        it.Analysis,
		Subject:         it.Subject,
		KnowledgePoints: []string(it.KnowledgePoints),
	}
}

// NewItem is what callers hand in to save an analyzed question.
type NewItem struct {
	OwnerID          string
	Record           question.Record
	OriginalImageURL string
	GradeSemester    string
	PaperLevel       string
}

const itemColumns = `id, owner_id, subject, question_text, answer_text, analysis, knowledge_points,
       original_image_url, grade_semester, paper_level, mastery_level, created_at, updated_at`

type ItemRepo struct {
	DB   *sqlx.DB
	Tags *TagRepo

	now func() time.Time
}

func NewItemRepo(db *sqlx.DB) *ItemRepo {
	return &ItemRepo{DB: db, Tags: NewTagRepo(db), now: func() time.Time { return time.Now().UTC() }}
}

// Create saves the item and links every knowledge point to a tag, creating owner tags
// for names that are neither system tags nor already owned.
func (r *ItemRepo) Create(ctx context.Context, in NewItem) (*Item, error) {
	if strings.TrimSpace(in.OwnerID) == "" {
		return nil, eris.New("owner id is required")
	}
	now := r.now()
	it := &Item{
		ID:               uuid.NewString(),
		OwnerID:          in.OwnerID,
		Subject:          in.Record.Subject,
		QuestionText:     in.Record.QuestionText,
		AnswerText:       in.Record.AnswerText,
		Analysis:         in.Record.Analysis,
		KnowledgePoints:  dedupe(in.Record.KnowledgePoints),
		OriginalImageURL: in.OriginalImageURL,
		GradeSemester:    strings.TrimSpace(in.GradeSemester),
		PaperLevel:       strings.TrimSpace(in.PaperLevel),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	key := SubjectKey(it.Subject)
	for _, name := range it.KnowledgePoints {
		tag, err := r.Tags.findOrCreate(ctx, tx, it.OwnerID, name, key, it.GradeSemester, now)
		if err != nil {
			return nil, err
		}
		it.Tags = append(it.Tags, *tag)
	}

	q := tx.Rebind(`insert into error_items (` + itemColumns + `)
values (?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if _, err := tx.ExecContext(ctx, q,
		it.ID, it.OwnerID, it.Subject, it.QuestionText, it.AnswerText, it.Analysis, it.KnowledgePoints,
		it.OriginalImageURL, it.GradeSemester, it.PaperLevel, it.MasteryLevel, it.CreatedAt, it.UpdatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "insert error item")
	}
	link := tx.Rebind(`insert into error_item_tags (item_id, tag_id) values (?, ?)`)
	for _, t := range it.Tags {
		if _, err := tx.ExecContext(ctx, link, it.ID, t.ID); err != nil {
			return nil, eris.Wrap(err, "link tag")
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "commit")
	}
	if it.Tags == nil {
		it.Tags = []Tag{}
	}
	return it, nil
}

func (r *ItemRepo) Get(ctx context.Context, id string) (*Item, error) {
	var it Item
	q := r.DB.Rebind(`select ` + itemColumns + ` from error_items where id = ?`)
	if err := r.DB.GetContext(ctx, &it, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "get item %s", id)
	}
	tags, err := r.Tags.ForItems(ctx, []string{it.ID})
	if err != nil {
		return nil, err
	}
	it.Tags = orEmpty(tags[it.ID])
	return &it, nil
}

func (r *ItemRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`delete from error_item_tags where item_id = ?`), id); err != nil {
		return eris.Wrap(err, "unlink tags")
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`delete from error_items where id = ?`), id)
	if err != nil {
		return eris.Wrap(err, "delete item")
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return ErrNotFound
	}
	return eris.Wrap(tx.Commit(), "commit")
}

// UpdateMastery sets the mastery level; 0 means not yet mastered.
func (r *ItemRepo) UpdateMastery(ctx context.Context, id string, level int) error {
	if level < 0 {
		return eris.Errorf("mastery level must be >= 0, got %d", level)
	}
	q := r.DB.Rebind(`update error_items set mastery_level = ?, updated_at = ? where id = ?`)
	res, err := r.DB.ExecContext(ctx, q, level, r.now(), id)
	if err != nil {
		return eris.Wrap(err, "update mastery")
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return ErrNotFound
	}
	return nil
}

// Filter narrows List. Empty fields do not filter.
type Filter struct {
	OwnerID       string
	Subject       question.Subject
	Query         string
	Mastery       string // "1" mastered, "0" not yet
	TimeRange     string // week | month | all
	Tag           string
	GradeSemester string
	PaperLevel    string // "all" does not filter
	Limit         int
	Offset        int
}

const maxListLimit = 200

// List returns matching items, newest first.
func (r *ItemRepo) List(ctx context.Context, f Filter) ([]Item, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, a ...any) {
		where = append(where, clause)
		args = append(args, a...)
	}

	if f.OwnerID != "" {
		add(`owner_id = ?`, f.OwnerID)
	}
	if f.Subject != "" {
		add(`subject = ?`, f.Subject)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		p := "%" + q + "%"
		add(`(lower(question_text) like lower(?) or lower(analysis) like lower(?) or lower(knowledge_points) like lower(?))`, p, p, p)
	}
	switch f.Mastery {
	case "1":
		add(`mastery_level > 0`)
	case "0":
		add(`mastery_level = 0`)
	}
	if since, ok := rangeStart(f.TimeRange, r.now()); ok {
		add(`created_at >= ?`, since)
	}
	if t := strings.TrimSpace(f.Tag); t != "" {
		add(`exists (select 1 from error_item_tags it join knowledge_tags t on t.id = it.tag_id
  where it.item_id = error_items.id and t.name = ?)`, t)
	}
	if gs := strings.TrimSpace(f.GradeSemester); gs != "" {
		clause, a := gradeFilter(gs)
		add(clause, a...)
	}
	if pl := strings.TrimSpace(f.PaperLevel); pl != "" && pl != "all" {
		add(`paper_level = ?`, pl)
	}

	q := `select ` + itemColumns + ` from error_items`
	if len(where) > 0 {
		q += "\nwhere " + strings.Join(where, "\n  and ")
	}
	q += "\norder by created_at desc, id"

	limit := f.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	q += "\nlimit ? offset ?"
	args = append(args, limit, max(f.Offset, 0))

	items := []Item{}
	if err := r.DB.SelectContext(ctx, &items, r.DB.Rebind(q), args...); err != nil {
		return nil, eris.Wrap(err, "list items")
	}
	if len(items) == 0 {
		return items, nil
	}

	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	tags, err := r.Tags.ForItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Tags = orEmpty(tags[items[i].ID])
	}
	return items, nil
}

func rangeStart(timeRange string, now time.Time) (time.Time, bool) {
	switch timeRange {
	case "week":
		return now.AddDate(0, 0, -7), true
	case "month":
		return now.AddDate(0, -1, 0), true
	default:
		return time.Time{}, false
	}
}

// SubjectKey groups tags the way the tag tree does: math, english, everything else.
func SubjectKey(s question.Subject) string {
	switch s {
	case question.SubjectMath, question.SubjectEnglish:
		return string(s)
	default:
		return "other"
	}
}

func dedupe(in []string) StringList {
	out := make(StringList, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func orEmpty(t []Tag) []Tag {
	if t == nil {
		return []Tag{}
	}
	return t
}
