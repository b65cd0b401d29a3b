package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/notes-bin/aigallery/internal/model"
)

// Postgres stores records with the embedding in a pgvector column.
type Postgres struct {
	DB *pgxpool.Pool
}

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS images (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id TEXT NOT NULL,
	file_path TEXT NOT NULL UNIQUE,
	file_name TEXT NOT NULL,
	description TEXT,
	color_palette JSONB,
	embedding vector,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_images_user_created ON images (user_id, created_at DESC);
`

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	// The vector type must exist before pooled connections register it.
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	_, err = conn.Exec(ctx, postgresSchema)
	conn.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate images table: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Postgres{DB: pool}, nil
}

func (s *Postgres) Insert(ctx context.Context, img *model.Image) (*model.Image, error) {
	var palette any
	if img.ColorPalette != nil {
		data, err := json.Marshal(img.ColorPalette)
		if err != nil {
			return nil, err
		}
		palette = data
	}
	var embedding *pgvector.Vector
	if img.Embedding != nil {
		v := pgvector.NewVector(img.Embedding)
		embedding = &v
	}

	row := *img
	err := s.DB.QueryRow(ctx,
		`INSERT INTO images (user_id, file_path, file_name, description, color_palette, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id::text, created_at`,
		row.UserID, row.FilePath, row.FileName, row.Description, palette, embedding,
	).Scan(&row.ID, &row.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicatePath
		}
		return nil, err
	}
	return &row, nil
}

const postgresColumns = `id::text, user_id, file_path, file_name, description, color_palette, embedding, created_at`

func (s *Postgres) Get(ctx context.Context, id string) (*model.Image, error) {
	return s.queryOne(ctx, `SELECT `+postgresColumns+` FROM images WHERE id::text = $1`, id)
}

func (s *Postgres) FindByPath(ctx context.Context, path string) (*model.Image, error) {
	return s.queryOne(ctx, `SELECT `+postgresColumns+` FROM images WHERE file_path = $1`, path)
}

func (s *Postgres) ListByUser(ctx context.Context, userID string) ([]model.Image, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+postgresColumns+`
		FROM images
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := []model.Image{}
	for rows.Next() {
		img, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, *img)
	}
	return images, rows.Err()
}

func (s *Postgres) Close() error {
	s.DB.Close()
	return nil
}

func (s *Postgres) queryOne(ctx context.Context, query string, arg any) (*model.Image, error) {
	img, err := scanPostgres(s.DB.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return img, err
}

func scanPostgres(row pgx.Row) (*model.Image, error) {
	var (
		img       model.Image
		palette   []byte
		embedding *pgvector.Vector
	)
	if err := row.Scan(&img.ID, &img.UserID, &img.FilePath, &img.FileName, &img.Description, &palette, &embedding, &img.CreatedAt); err != nil {
		return nil, err
	}
	if palette != nil {
		if err := json.Unmarshal(palette, &img.ColorPalette); err != nil {
			return nil, fmt.Errorf("decode color_palette: %w", err)
		}
	}
	if embedding != nil {
		img.Embedding = embedding.Slice()
	}
	return &img, nil
}
