package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/notes-bin/aigallery/internal/model"
)

// SQLite is the single-node backend. Palette and embedding are JSON text,
// created_at is unix nanoseconds.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(dsn string) (*SQLite, error) {
	if dir := filepath.Dir(dsn); dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLite) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS images (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			file_path TEXT NOT NULL UNIQUE,
			file_name TEXT NOT NULL,
			description TEXT,
			color_palette TEXT,
			embedding TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_images_user_created ON images (user_id, created_at DESC);`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Insert(ctx context.Context, img *model.Image) (*model.Image, error) {
	palette, err := jsonOrNull(img.ColorPalette)
	if err != nil {
		return nil, err
	}
	embedding, err := jsonOrNull(img.Embedding)
	if err != nil {
		return nil, err
	}

	row := *img
	row.ID = uuid.NewString()
	row.CreatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO images (id, user_id, file_path, file_name, description, color_palette, embedding, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, row.ID, row.UserID, row.FilePath, row.FileName, row.Description, palette, embedding, row.CreatedAt.UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicatePath
		}
		return nil, err
	}
	return &row, nil
}

const sqliteColumns = `id, user_id, file_path, file_name, description, color_palette, embedding, created_at`

func (s *SQLite) Get(ctx context.Context, id string) (*model.Image, error) {
	return s.queryOne(ctx, `SELECT `+sqliteColumns+` FROM images WHERE id = ?`, id)
}

func (s *SQLite) FindByPath(ctx context.Context, path string) (*model.Image, error) {
	return s.queryOne(ctx, `SELECT `+sqliteColumns+` FROM images WHERE file_path = ?`, path)
}

func (s *SQLite) ListByUser(ctx context.Context, userID string) ([]model.Image, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+sqliteColumns+`
	FROM images
	WHERE user_id = ?
	ORDER BY created_at DESC, rowid DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := []model.Image{}
	for rows.Next() {
		img, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, *img)
	}
	return images, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) queryOne(ctx context.Context, query string, arg any) (*model.Image, error) {
	img, err := scanSQLite(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return img, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(sc scanner) (*model.Image, error) {
	var (
		img       model.Image
		palette   sql.NullString
		embedding sql.NullString
		created   int64
	)
	err := sc.Scan(&img.ID, &img.UserID, &img.FilePath, &img.FileName, &img.Description, &palette, &embedding, &created)
	if err != nil {
		return nil, err
	}
	if palette.Valid {
		if err := json.Unmarshal([]byte(palette.String), &img.ColorPalette); err != nil {
			return nil, fmt.Errorf("decode color_palette: %w", err)
		}
	}
	if embedding.Valid {
		if err := json.Unmarshal([]byte(embedding.String), &img.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding: %w", err)
		}
	}
	img.CreatedAt = time.Unix(0, created).UTC()
	return &img, nil
}

func jsonOrNull[T any](v []T) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
