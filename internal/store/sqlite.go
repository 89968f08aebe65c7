package store

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	log "github.com/sirupsen/logrus"

	"github.com/tasksuite/tasks/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

//go:embed migrations/*.sql
var migrationFS embed.FS

type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteStore opens the database at dataSourceName and applies pending
// migrations. ":memory:" gives a throwaway database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dataSourceName+"?_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// A single connection keeps writes serialized and in-memory databases shared.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	store := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err = store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db.DB, fsys)
	if err != nil {
		return errors.Wrap(err, "failed to create migration provider")
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}
	for _, r := range results {
		log.Debugf("Applied migration %s in %s", r.Source.Path, r.Duration)
	}
	return nil
}

// Task methods

func (s *SQLiteStore) ListTasks(ctx context.Context) ([]model.Task, error) {
	tasks := []model.Task{}
	err := s.db.SelectContext(ctx, &tasks,
		"SELECT id, title, completed, created_date, updated_date FROM tasks ORDER BY rowid ASC")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query tasks")
	}
	return tasks, nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	err := s.db.GetContext(ctx, &task,
		"SELECT id, title, completed, created_date, updated_date FROM tasks WHERE id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "failed to get task %s", id)
	}
	return &task, nil
}

func (s *SQLiteStore) CreateTask(ctx context.Context, title string, completed bool) (*model.Task, error) {
	now := s.now()
	task := model.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Completed:   completed,
		CreatedDate: now,
		UpdatedDate: now,
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO tasks (id, title, completed, created_date, updated_date)
		 VALUES (:id, :title, :completed, :created_date, :updated_date)`, task)
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert task")
	}
	return &task, nil
}

// UpdateTask applies the non-nil fields of patch.
func (s *SQLiteStore) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var task model.Task
	err = tx.GetContext(ctx, &task,
		"SELECT id, title, completed, created_date, updated_date FROM tasks WHERE id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "failed to get task %s", id)
	}

	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Completed != nil {
		task.Completed = *patch.Completed
	}
	task.UpdatedDate = s.now()

	_, err = tx.NamedExecContext(ctx,
		"UPDATE tasks SET title = :title, completed = :completed, updated_date = :updated_date WHERE id = :id", task)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to update task %s", id)
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit task update")
	}
	return &task, nil
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete task %s", id)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// User methods

// UpsertUser inserts the user or refreshes the profile of the user with the
// same email. The stored record is returned.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user model.User) (*model.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = "user"
	}
	user.CreatedDate = s.now()

	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO users (id, email, full_name, role, created_date)
		 VALUES (:id, :email, :full_name, :role, :created_date)
		 ON CONFLICT (email) DO UPDATE SET full_name = excluded.full_name`, user)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert user")
	}

	var stored model.User
	err = s.db.GetContext(ctx, &stored,
		"SELECT id, email, full_name, role, created_date FROM users WHERE email = ?", user.Email)
	if err != nil {
		return nil, errors.Wrap(err, "failed to reload user")
	}
	return &stored, nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := s.db.GetContext(ctx, &user,
		"SELECT id, email, full_name, role, created_date FROM users WHERE id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to query user")
	}
	return &user, nil
}

// Conversation methods

func (s *SQLiteStore) CreateConversation(ctx context.Context, userID, agentName string) (*model.Conversation, error) {
	row := conversationRow{
		ID:          uuid.NewString(),
		UserID:      userID,
		AgentName:   agentName,
		CreatedDate: s.now(),
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO conversations (id, user_id, agent_name, created_date)
		 VALUES (:id, :user_id, :agent_name, :created_date)`, row)
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert conversation")
	}
	return &model.Conversation{
		ID:          row.ID,
		AgentName:   row.AgentName,
		UserID:      row.UserID,
		Messages:    []model.Message{},
		CreatedDate: row.CreatedDate,
	}, nil
}

// GetConversation loads a conversation with its messages in order.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var row conversationRow
	err := s.db.GetContext(ctx, &row,
		"SELECT id, user_id, agent_name, created_date FROM conversations WHERE id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "failed to get conversation %s", id)
	}

	var rows []messageRow
	err = s.db.SelectContext(ctx, &rows,
		`SELECT seq, id, conversation_id, role, content, tool_calls, hidden, created_date
		 FROM messages WHERE conversation_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query messages of conversation %s", id)
	}

	conv := &model.Conversation{
		ID:          row.ID,
		AgentName:   row.AgentName,
		UserID:      row.UserID,
		Messages:    make([]model.Message, 0, len(rows)),
		CreatedDate: row.CreatedDate,
	}
	for _, r := range rows {
		msg, err := r.toModel()
		if err != nil {
			return nil, err
		}
		conv.Messages = append(conv.Messages, msg)
	}
	return conv, nil
}

// AppendMessage stores msg at the end of the conversation, assigning its id
// and timestamp.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, msg *model.Message) error {
	msg.ID = uuid.NewString()
	msg.CreatedDate = s.now()

	row, err := newMessageRow(conversationID, *msg)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, tool_calls, hidden, created_date)
		 VALUES (:id, :conversation_id, :role, :content, :tool_calls, :hidden, :created_date)`, row)
	if err != nil {
		return errors.Wrap(err, "failed to insert message")
	}
	return nil
}

// UpdateMessage rewrites the content, tool calls and hidden flag of a message.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, conversationID string, msg model.Message) error {
	row, err := newMessageRow(conversationID, msg)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx,
		`UPDATE messages SET content = :content, tool_calls = :tool_calls, hidden = :hidden
		 WHERE id = :id AND conversation_id = :conversation_id`, row)
	if err != nil {
		return errors.Wrapf(err, "failed to update message %s", msg.ID)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}
