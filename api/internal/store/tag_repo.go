package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"
)

// Tag is a knowledge tag. System tags are shared; owner tags belong to one user.
type Tag struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Subject   string    `db:"subject" json:"subject"`
	IsSystem  bool      `db:"is_system" json:"isSystem"`
	OwnerID   string    `db:"owner_id" json:"ownerId,omitempty"`
	ParentID  string    `db:"parent_id" json:"parentId,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

const tagColumns = `id, name, subject, is_system, owner_id, parent_id, created_at`

type TagRepo struct{ DB *sqlx.DB }

func NewTagRepo(db *sqlx.DB) *TagRepo { return &TagRepo{DB: db} }

// findOrCreate resolves name to a system tag or one of owner's tags, creating an
// owner tag under the grade node when neither exists.
func (r *TagRepo) findOrCreate(ctx context.Context, tx *sqlx.Tx, owner, name, subjectKey, gradeSemester string, now time.Time) (*Tag, error) {
	var t Tag
	q := tx.Rebind(`select ` + tagColumns + ` from knowledge_tags
where name = ? and (is_system = ? or owner_id = ?)
order by is_system desc
limit 1`)
	err := tx.GetContext(ctx, &t, q, name, true, owner)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(err, "find tag %q", name)
	}

	parent := ""
	if node := GradeNode(gradeSemester); node != "" {
		var id string
		pq := tx.Rebind(`select id from knowledge_tags where is_system = ? and subject = ? and name = ? limit 1`)
		switch err := tx.GetContext(ctx, &id, pq, true, subjectKey, node); {
		case err == nil:
			parent = id
		case !errors.Is(err, sql.ErrNoRows):
			return nil, eris.Wrapf(err, "find grade node %q", node)
		}
	}

	t = Tag{
		ID:        uuid.NewString(),
		Name:      name,
		Subject:   subjectKey,
		OwnerID:   owner,
		ParentID:  parent,
		CreatedAt: now,
	}
	if err := insertTag(ctx, tx, t); err != nil {
		return nil, err
	}
	return &t, nil
}

func insertTag(ctx context.Context, ex sqlx.ExtContext, t Tag) error {
	q := ex.Rebind(`insert into knowledge_tags (` + tagColumns + `) values (?,?,?,?,?,?,?)`)
	if _, err := ex.ExecContext(ctx, q, t.ID, t.Name, t.Subject, t.IsSystem, t.OwnerID, t.ParentID, t.CreatedAt); err != nil {
		return eris.Wrapf(err, "insert tag %q", t.Name)
	}
	return nil
}

// EnsureSystem creates the named system tags for subjectKey that do not exist yet,
// under the system tag named parent when parent is not empty. It returns how many were created.
func (r *TagRepo) EnsureSystem(ctx context.Context, subjectKey, parent string, names []string) (int, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	parentID := ""
	if parent != "" {
		p, _, err := ensureSystemTag(ctx, tx, subjectKey, parent, "", now)
		if err != nil {
			return 0, err
		}
		parentID = p
	}
	created := 0
	for _, n := range names {
		_, isNew, err := ensureSystemTag(ctx, tx, subjectKey, n, parentID, now)
		if err != nil {
			return 0, err
		}
		if isNew {
			created++
		}
	}
	return created, eris.Wrap(tx.Commit(), "commit")
}

func ensureSystemTag(ctx context.Context, tx *sqlx.Tx, subjectKey, name, parentID string, now time.Time) (string, bool, error) {
	var id string
	q := tx.Rebind(`select id from knowledge_tags where is_system = ? and subject = ? and name = ? limit 1`)
	err := tx.GetContext(ctx, &id, q, true, subjectKey, name)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, eris.Wrapf(err, "find system tag %q", name)
	}
	t := Tag{ID: uuid.NewString(), Name: name, Subject: subjectKey, IsSystem: true, ParentID: parentID, CreatedAt: now}
	if err := insertTag(ctx, tx, t); err != nil {
		return "", false, err
	}
	return t.ID, true, nil
}

// List returns the system tags plus owner's own tags, optionally for one subject key.
func (r *TagRepo) List(ctx context.Context, owner, subjectKey string) ([]Tag, error) {
	q := `select ` + tagColumns + ` from knowledge_tags where (is_system = ? or owner_id = ?)`
	args := []any{true, owner}
	if subjectKey != "" {
		q += ` and subject = ?`
		args = append(args, subjectKey)
	}
	q += ` order by is_system desc, name`
	tags := []Tag{}
	if err := r.DB.SelectContext(ctx, &tags, r.DB.Rebind(q), args...); err != nil {
		return nil, eris.Wrap(err, "list tags")
	}
	return tags, nil
}

type itemTag struct {
	ItemID string `db:"item_id"`
	Tag
}

// ForItems loads the tags of several items in one query.
func (r *TagRepo) ForItems(ctx context.Context, itemIDs []string) (map[string][]Tag, error) {
	out := make(map[string][]Tag, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	q, args, err := sqlx.In(`select it.item_id, t.id, t.name, t.subject, t.is_system, t.owner_id, t.parent_id, t.created_at
from error_item_tags it join knowledge_tags t on t.id = it.tag_id
where it.item_id in (?)
order by t.name`, itemIDs)
	if err != nil {
		return nil, eris.Wrap(err, "build tag query")
	}
	var rows []itemTag
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(q), args...); err != nil {
		return nil, eris.Wrap(err, "load item tags")
	}
	for _, row := range rows {
		out[row.ItemID] = append(out[row.ItemID], row.Tag)
	}
	return out, nil
}
