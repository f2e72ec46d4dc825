package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/voicelocal/voicelocal/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
// Vote counters are not stored: they are counted from the votes table on
// every read, so they always match the ledger.
type SQLiteStore struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection serializes every operation, which keeps the vote
	// toggle atomic for concurrent HTTP and MCP callers.
	db.SetMaxOpenConns(1)

	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode=WAL", "enable WAL mode"},
		{"PRAGMA busy_timeout=5000", "set busy timeout"},
		{"PRAGMA foreign_keys=ON", "enable foreign keys"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p.what, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// inTx runs fn inside a transaction, committing when it returns nil.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- Issues ---

const issueColumns = `id, title, description, location, image_url, status, category, priority, author, author_id, is_deleted, created_at, updated_at`

func scanIssue(scan func(dest ...any) error) (*models.Issue, error) {
	issue := &models.Issue{
		UserVotes: map[string]models.VoteType{},
		Comments:  []*models.Comment{},
	}
	var status, priority string
	var updatedAt sql.NullTime
	if err := scan(&issue.ID, &issue.Title, &issue.Description, &issue.Location, &issue.ImageURL,
		&status, &issue.Category, &priority, &issue.Author, &issue.AuthorID,
		&issue.IsDeleted, &issue.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}
	issue.Status = models.IssueStatus(status)
	issue.Priority = models.IssuePriority(priority)
	if updatedAt.Valid {
		t := updatedAt.Time
		issue.UpdatedAt = &t
	}
	return issue, nil
}

func (s *SQLiteStore) CreateIssue(ctx context.Context, in models.IssueInput, actor *models.User) (*models.Issue, error) {
	if err := models.ValidateActor(actor); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = models.IssueStatusOpen
	}
	issue := &models.Issue{
		ID:          newULID(),
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		ImageURL:    in.ImageURL,
		Status:      status,
		Category:    in.Category,
		Priority:    in.Priority,
		UserVotes:   map[string]models.VoteType{},
		Comments:    []*models.Comment{},
		Author:      actor.DisplayName,
		AuthorID:    actor.ID,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (id, title, description, location, image_url, status, category, priority, author, author_id, is_deleted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		issue.ID, issue.Title, issue.Description, issue.Location, issue.ImageURL,
		string(issue.Status), issue.Category, string(issue.Priority),
		issue.Author, issue.AuthorID, issue.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	return issue, nil
}

// loadIssue reads one issue with its comments and ledger, regardless of
// the soft-delete flag.
func (s *SQLiteStore) loadIssue(ctx context.Context, q querier, id string) (*models.Issue, error) {
	issue, err := scanIssue(q.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = ?`, id).Scan)
	if err == sql.ErrNoRows {
		return nil, issueNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	if err := s.hydrate(ctx, q, []*models.Issue{issue}); err != nil {
		return nil, err
	}
	return issue, nil
}

// requireLive returns ErrNotFound unless the issue exists and is not
// soft-deleted.
func requireLive(ctx context.Context, q querier, id string) error {
	var deleted bool
	err := q.QueryRowContext(ctx, "SELECT is_deleted FROM issues WHERE id = ?", id).Scan(&deleted)
	if err == sql.ErrNoRows || (err == nil && deleted) {
		return issueNotFound(id)
	}
	if err != nil {
		return fmt.Errorf("check issue: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateIssue(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var updated *models.Issue
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		issue, err := s.loadIssue(ctx, tx, id)
		if err != nil {
			return err
		}
		patch.Apply(issue)
		now := time.Now().UTC()
		issue.UpdatedAt = &now

		_, err = tx.ExecContext(ctx,
			`UPDATE issues SET title=?, description=?, location=?, image_url=?, status=?, category=?, priority=?, is_deleted=?, updated_at=?
			WHERE id=?`,
			issue.Title, issue.Description, issue.Location, issue.ImageURL,
			string(issue.Status), issue.Category, string(issue.Priority),
			boolToInt(issue.IsDeleted), now, issue.ID,
		)
		if err != nil {
			return fmt.Errorf("update issue: %w", err)
		}
		updated = issue
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SQLiteStore) SoftDeleteIssue(ctx context.Context, id string) error {
	_, err := s.UpdateIssue(ctx, id, models.IssuePatch{IsDeleted: models.Ptr(true)})
	return err
}

func (s *SQLiteStore) RestoreIssue(ctx context.Context, id string) error {
	_, err := s.UpdateIssue(ctx, id, models.IssuePatch{IsDeleted: models.Ptr(false)})
	return err
}

func (s *SQLiteStore) HardDeleteIssue(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM issues WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return issueNotFound(id)
	}
	return nil
}

func (s *SQLiteStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	issue, err := s.loadIssue(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if issue.IsDeleted {
		return nil, issueNotFound(id)
	}
	return issue, nil
}

func (s *SQLiteStore) LookupIssue(ctx context.Context, id string) (*models.Issue, error) {
	return s.loadIssue(ctx, s.db, id)
}

func (s *SQLiteStore) ListIssues(ctx context.Context) ([]*models.Issue, error) {
	return s.listIssues(ctx, "is_deleted = 0")
}

func (s *SQLiteStore) ListIssuesByAuthor(ctx context.Context, authorID string) ([]*models.Issue, error) {
	return s.listIssues(ctx, "is_deleted = 0 AND author_id = ?", authorID)
}

func (s *SQLiteStore) ListDeletedIssues(ctx context.Context) ([]*models.Issue, error) {
	return s.listIssues(ctx, "is_deleted = 1")
}

// listIssues returns hydrated issues matching where, most recent first.
func (s *SQLiteStore) listIssues(ctx context.Context, where string, args ...any) ([]*models.Issue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE `+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, s.db, issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// hydrate loads comments and vote ledgers for the given issues and derives
// the vote counters from the ledger.
func (s *SQLiteStore) hydrate(ctx context.Context, q querier, issues []*models.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	byID := make(map[string]*models.Issue, len(issues))
	placeholders := make([]string, len(issues))
	args := make([]any, len(issues))
	for i, issue := range issues {
		byID[issue.ID] = issue
		placeholders[i] = "?"
		args[i] = issue.ID
	}
	in := strings.Join(placeholders, ",")

	crows, err := q.QueryContext(ctx,
		`SELECT id, issue_id, author, author_id, content, created_at, updated_at
		FROM comments WHERE issue_id IN (`+in+`) ORDER BY rowid`, args...)
	if err != nil {
		return fmt.Errorf("list comments: %w", err)
	}
	for crows.Next() {
		var issueID string
		c, err := scanComment(func(dest ...any) error {
			return crows.Scan(append([]any{dest[0], &issueID}, dest[1:]...)...)
		})
		if err != nil {
			_ = crows.Close()
			return fmt.Errorf("scan comment: %w", err)
		}
		issue := byID[issueID]
		issue.Comments = append(issue.Comments, c)
	}
	_ = crows.Close()
	if err := crows.Err(); err != nil {
		return err
	}

	vrows, err := q.QueryContext(ctx,
		`SELECT issue_id, user_id, type FROM votes WHERE issue_id IN (`+in+`)`, args...)
	if err != nil {
		return fmt.Errorf("list votes: %w", err)
	}
	defer func() { _ = vrows.Close() }()
	for vrows.Next() {
		var issueID, userID, voteType string
		if err := vrows.Scan(&issueID, &userID, &voteType); err != nil {
			return fmt.Errorf("scan vote: %w", err)
		}
		byID[issueID].UserVotes[userID] = models.VoteType(voteType)
	}
	if err := vrows.Err(); err != nil {
		return err
	}

	for _, issue := range issues {
		issue.Upvotes, issue.Downvotes = models.CountVotes(issue.UserVotes)
	}
	return nil
}

// --- Votes ---

func (s *SQLiteStore) Vote(ctx context.Context, issueID, userID string, t models.VoteType) (*models.Issue, error) {
	if err := validateVote(userID, t); err != nil {
		return nil, err
	}

	var issue *models.Issue
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := requireLive(ctx, tx, issueID); err != nil {
			return err
		}

		var current string
		err := tx.QueryRowContext(ctx,
			"SELECT type FROM votes WHERE issue_id = ? AND user_id = ?", issueID, userID).Scan(&current)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("read vote: %w", err)
		}

		switch next := models.ToggleVote(models.VoteType(current), t); {
		case next == "":
			_, err = tx.ExecContext(ctx, "DELETE FROM votes WHERE issue_id = ? AND user_id = ?", issueID, userID)
		case current == "":
			_, err = tx.ExecContext(ctx,
				"INSERT INTO votes (issue_id, user_id, type, created_at) VALUES (?, ?, ?, ?)",
				issueID, userID, string(next), time.Now().UTC())
		default:
			_, err = tx.ExecContext(ctx,
				"UPDATE votes SET type = ? WHERE issue_id = ? AND user_id = ?", string(next), issueID, userID)
		}
		if err != nil {
			return fmt.Errorf("record vote: %w", err)
		}

		issue, err = s.loadIssue(ctx, tx, issueID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return issue, nil
}

// --- Comments ---

func scanComment(scan func(dest ...any) error) (*models.Comment, error) {
	c := &models.Comment{}
	var updatedAt sql.NullTime
	if err := scan(&c.ID, &c.Author, &c.AuthorID, &c.Content, &c.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		c.UpdatedAt = &t
	}
	return c, nil
}

func (s *SQLiteStore) AddComment(ctx context.Context, issueID string, in models.CommentInput) (*models.Comment, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	c := &models.Comment{
		ID:        newULID(),
		Author:    in.Author,
		AuthorID:  in.AuthorID,
		Content:   in.Content,
		CreatedAt: time.Now().UTC(),
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := requireLive(ctx, tx, issueID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO comments (id, issue_id, author, author_id, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, issueID, c.Author, c.AuthorID, c.Content, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("create comment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLiteStore) EditComment(ctx context.Context, issueID, commentID, content string) (*models.Comment, error) {
	if err := models.ValidateCommentContent(content); err != nil {
		return nil, err
	}

	var c *models.Comment
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := requireLive(ctx, tx, issueID); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx,
			"UPDATE comments SET content = ?, updated_at = ? WHERE id = ? AND issue_id = ?",
			content, time.Now().UTC(), commentID, issueID)
		if err != nil {
			return fmt.Errorf("update comment: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return commentNotFound(commentID)
		}
		c, err = scanComment(tx.QueryRowContext(ctx,
			"SELECT id, author, author_id, content, created_at, updated_at FROM comments WHERE id = ?", commentID).Scan)
		if err != nil {
			return fmt.Errorf("get comment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLiteStore) DeleteComment(ctx context.Context, issueID, commentID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := requireLive(ctx, tx, issueID); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, "DELETE FROM comments WHERE id = ? AND issue_id = ?", commentID, issueID)
		if err != nil {
			return fmt.Errorf("delete comment: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return commentNotFound(commentID)
		}
		return nil
	})
}

// --- Categories ---

const categoryColumns = `id, name, color, description, created_at, updated_at`

func scanCategory(scan func(dest ...any) error) (*models.Category, error) {
	c := &models.Category{}
	var updatedAt sql.NullTime
	if err := scan(&c.ID, &c.Name, &c.Color, &c.Description, &c.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		c.UpdatedAt = &t
	}
	return c, nil
}

// nameTaken reports whether a category other than exceptID uses name.
func nameTaken(ctx context.Context, q querier, name, exceptID string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM categories WHERE name_key = ? AND id != ?",
		models.CategoryKey(name), exceptID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check category name: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) loadCategory(ctx context.Context, q querier, id string) (*models.Category, error) {
	c, err := scanCategory(q.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id).Scan)
	if err == sql.ErrNoRows {
		return nil, categoryNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) CreateCategory(ctx context.Context, in models.CategoryInput) (*models.Category, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	c := &models.Category{
		ID:          newULID(),
		Name:        strings.TrimSpace(in.Name),
		Color:       in.Color,
		Description: in.Description,
		CreatedAt:   time.Now().UTC(),
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		taken, err := nameTaken(ctx, tx, c.Name, "")
		if err != nil {
			return err
		}
		if taken {
			return categoryExists(c.Name)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO categories (id, name, name_key, color, description, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, models.CategoryKey(c.Name), c.Color, c.Description, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("create category: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLiteStore) UpdateCategory(ctx context.Context, id string, patch models.CategoryPatch) (*models.Category, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var updated *models.Category
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		c, err := s.loadCategory(ctx, tx, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			taken, err := nameTaken(ctx, tx, *patch.Name, id)
			if err != nil {
				return err
			}
			if taken {
				return categoryExists(strings.TrimSpace(*patch.Name))
			}
		}
		patch.Apply(c)
		now := time.Now().UTC()
		c.UpdatedAt = &now

		_, err = tx.ExecContext(ctx,
			`UPDATE categories SET name=?, name_key=?, color=?, description=?, updated_at=? WHERE id=?`,
			c.Name, models.CategoryKey(c.Name), c.Color, c.Description, now, c.ID)
		if err != nil {
			return fmt.Errorf("update category: %w", err)
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SQLiteStore) DeleteCategory(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return categoryNotFound(id)
	}
	return nil
}

func (s *SQLiteStore) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	return s.loadCategory(ctx, s.db, id)
}

func (s *SQLiteStore) ListCategories(ctx context.Context) ([]*models.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories ORDER BY name_key, id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cats := []*models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}
