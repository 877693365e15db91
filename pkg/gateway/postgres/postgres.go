// Package postgres implements the task gateway on PostgreSQL. Row changes
// are delivered through LISTEN/NOTIFY on the tasks_changes channel, which the
// triggers installed by Migrate publish to.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/gateway"
	"github.com/harrisonrobin/taskflow/pkg/model"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// ChangeChannel is the NOTIFY channel the tasks trigger publishes to.
const ChangeChannel = "tasks_changes"

const taskColumns = `id, title, description, status, priority, due_date, created_at, updated_at, user_id, assigned_to, tags, shared_with`

// Gateway is a gateway.Gateway backed by a PostgreSQL database.
type Gateway struct {
	db  *sql.DB
	dsn string
}

// Open connects to the database named by dsn.
func Open(dsn string) (*Gateway, error) {
	if dsn == "" {
		return nil, gateway.ErrNotConfigured
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open task store: %w", err)
	}
	return &Gateway{db: db, dsn: dsn}, nil
}

func (g *Gateway) Close() error {
	return g.db.Close()
}

// Migrate creates the tables and change triggers if they are missing.
func (g *Gateway) Migrate(ctx context.Context) error {
	if _, err := g.db.ExecContext(ctx, schema); err != nil {
		return classify("migrate", err)
	}
	return nil
}

func (g *Gateway) Ping(ctx context.Context) error {
	if err := g.db.PingContext(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (model.Task, error) {
	var (
		t           model.Task
		description sql.NullString
		assignedTo  sql.NullString
		due         sql.NullTime
		status      string
		priority    string
	)
	err := row.Scan(&t.ID, &t.Title, &description, &status, &priority, &due,
		&t.CreatedAt, &t.UpdatedAt, &t.UserID, &assignedTo, pq.Array(&t.Tags), pq.Array(&t.SharedWith))
	if err != nil {
		return model.Task{}, err
	}
	if t.Status, err = model.ParseStatus(status); err != nil {
		return model.Task{}, err
	}
	if t.Priority, err = model.ParsePriority(priority); err != nil {
		return model.Task{}, err
	}
	if description.Valid {
		t.Description = model.String(description.String)
	}
	if assignedTo.Valid {
		t.AssignedTo = model.String(assignedTo.String)
	}
	if due.Valid {
		d := due.Time
		t.DueDate = &d
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.SharedWith == nil {
		t.SharedWith = []string{}
	}
	return t, nil
}

func (g *Gateway) Query(ctx context.Context, ownerID string) ([]model.Task, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, classify("query tasks", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, classify("scan task", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("query tasks", err)
	}
	return tasks, nil
}

// fetch reads one of ownerID's tasks.
func (g *Gateway) fetch(ctx context.Context, ownerID, id string) (model.Task, error) {
	row := g.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND user_id = $2`, id, ownerID)
	t, err := scanTask(row)
	if err != nil {
		return model.Task{}, classify("fetch task "+id, err)
	}
	return t, nil
}

func (g *Gateway) Insert(ctx context.Context, ownerID string, in model.TaskInsert) (model.Task, error) {
	in = in.Defaults()
	row := g.db.QueryRowContext(ctx,
		`INSERT INTO tasks (title, description, status, priority, due_date, user_id, assigned_to, tags, shared_with)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+taskColumns,
		in.Title, nullString(in.Description), string(in.Status), string(in.Priority), nullTime(in.DueDate),
		ownerID, nullString(in.AssignedTo), pq.Array(in.Tags), pq.Array(in.SharedWith))
	t, err := scanTask(row)
	if err != nil {
		return model.Task{}, classify("insert task", err)
	}
	return t, nil
}

// updateSet renders the SET clause for u. Parameters start at $3; $1 and $2
// are the task id and owner.
func updateSet(u model.TaskUpdate) (string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)+2))
	}
	if u.Title != nil {
		add("title", *u.Title)
	}
	if u.ClearDescription {
		sets = append(sets, "description = NULL")
	} else if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.Priority != nil {
		add("priority", string(*u.Priority))
	}
	if u.ClearDueDate {
		sets = append(sets, "due_date = NULL")
	} else if u.DueDate != nil {
		add("due_date", *u.DueDate)
	}
	if u.ClearAssignee {
		sets = append(sets, "assigned_to = NULL")
	} else if u.AssignedTo != nil {
		add("assigned_to", *u.AssignedTo)
	}
	if u.Tags != nil {
		add("tags", pq.Array(u.Tags))
	}
	if u.SharedWith != nil {
		add("shared_with", pq.Array(u.SharedWith))
	}
	if u.UpdatedAt != nil {
		add("updated_at", *u.UpdatedAt)
	} else {
		sets = append(sets, "updated_at = now()")
	}
	return strings.Join(sets, ", "), args
}

func (g *Gateway) Update(ctx context.Context, ownerID, id string, u model.TaskUpdate) (model.Task, error) {
	set, args := updateSet(u)
	row := g.db.QueryRowContext(ctx,
		`UPDATE tasks SET `+set+` WHERE id = $1 AND user_id = $2 RETURNING `+taskColumns,
		append([]any{id, ownerID}, args...)...)
	t, err := scanTask(row)
	if err != nil {
		return model.Task{}, classify("update task "+id, err)
	}
	return t, nil
}

func (g *Gateway) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := g.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, ownerID); err != nil {
		return classify("delete task "+id, err)
	}
	return nil
}

func (g *Gateway) InsertShare(ctx context.Context, share model.TaskShare) (model.TaskShare, error) {
	if share.Permission == "" {
		share.Permission = model.PermissionRead
	}
	// The share is only accepted for a task the sharer owns.
	row := g.db.QueryRowContext(ctx,
		`INSERT INTO task_shares (task_id, shared_with_email, shared_by_user_id, permission)
		 SELECT id, $2, $3, $4 FROM tasks WHERE id = $1 AND user_id = $3
		 RETURNING id, created_at`,
		share.TaskID, share.SharedWithEmail, share.SharedByUserID, string(share.Permission))
	if err := row.Scan(&share.ID, &share.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return model.TaskShare{}, fmt.Errorf("share task %s: %w", share.TaskID, gateway.ErrPermissionDenied)
		}
		return model.TaskShare{}, classify("share task "+share.TaskID, err)
	}
	return share, nil
}

func (g *Gateway) UpsertProfile(ctx context.Context, p model.Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	_, err := g.db.ExecContext(ctx,
		`INSERT INTO profiles (id, name, email, full_name, avatar, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email,
		   full_name = EXCLUDED.full_name, avatar = EXCLUDED.avatar, updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, p.Email, nullString(p.FullName), nullString(p.Avatar), p.UpdatedAt)
	if err != nil {
		return classify("upsert profile", err)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
