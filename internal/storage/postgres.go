package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facelog/internal/config"
	"github.com/your-org/facelog/internal/models"
	"github.com/your-org/facelog/internal/vector"
)

//go:embed schema.sql
var schemaSQL string

type PostgresStore struct {
	pool  *pgxpool.Pool
	codec vector.Codec
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	return NewPostgresStoreFromDSN(context.Background(), cfg.DSN(), cfg.MaxConns)
}

func NewPostgresStoreFromDSN(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool, codec: vector.TextCodec{}}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the extension, tables and indexes that do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// --- Identities ---

// InsertIdentity writes a new identity row with the caller-assigned id.
// A taken id yields ErrIdentityConflict.
func (s *PostgresStore) InsertIdentity(ctx context.Context, id *models.Identity) error {
	if id.CreatedAt.IsZero() {
		id.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO face_identities (id, face_vector, embedding, image_key, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id.ID, s.codec.Encode(id.Embedding), pgvector.NewVector(id.Embedding.Float32()), id.ImageKey, id.CreatedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return fmt.Errorf("insert identity %d: %w", id.ID, ErrIdentityConflict)
		}
		return fmt.Errorf("insert identity %d: %w", id.ID, err)
	}
	return nil
}

// ListIdentities returns every identity in id order. The registry relies on
// this order matching insertion order.
func (s *PostgresStore) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, face_vector, image_key, created_at FROM face_identities ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []models.Identity
	for rows.Next() {
		var (
			id   models.Identity
			text string
		)
		if err := rows.Scan(&id.ID, &text, &id.ImageKey, &id.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		if id.Embedding, err = s.codec.Decode(text); err != nil {
			return nil, fmt.Errorf("decode identity %d: %w", id.ID, err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetIdentity(ctx context.Context, id int64) (*models.IdentityWithAliases, error) {
	var (
		out      models.IdentityWithAliases
		text     string
		idn, sid *string
		updated  *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT f.id, f.face_vector, f.image_key, f.created_at,
		        a.identification_number, a.student_id_number, a.updated_at
		 FROM face_identities f
		 LEFT JOIN identity_aliases a ON a.identity_id = f.id
		 WHERE f.id = $1`, id,
	).Scan(&out.ID, &text, &out.ImageKey, &out.CreatedAt, &idn, &sid, &updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get identity %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get identity %d: %w", id, err)
	}
	if out.Embedding, err = s.codec.Decode(text); err != nil {
		return nil, fmt.Errorf("decode identity %d: %w", id, err)
	}
	out.Aliases = aliasesFromColumns(out.ID, idn, sid, updated)
	return &out, nil
}

// ListIdentitiesWithAliases returns one page of identities and the total count.
func (s *PostgresStore) ListIdentitiesWithAliases(ctx context.Context, limit, offset int) ([]models.IdentityWithAliases, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM face_identities`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count identities: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT f.id, f.image_key, f.created_at,
		        a.identification_number, a.student_id_number, a.updated_at
		 FROM face_identities f
		 LEFT JOIN identity_aliases a ON a.identity_id = f.id
		 ORDER BY f.id ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []models.IdentityWithAliases
	for rows.Next() {
		var (
			i        models.IdentityWithAliases
			idn, sid *string
			updated  *time.Time
		)
		if err := rows.Scan(&i.ID, &i.ImageKey, &i.CreatedAt, &idn, &sid, &updated); err != nil {
			return nil, 0, fmt.Errorf("scan identity: %w", err)
		}
		i.Aliases = aliasesFromColumns(i.ID, idn, sid, updated)
		out = append(out, i)
	}
	return out, total, rows.Err()
}

func aliasesFromColumns(id int64, idn, sid *string, updated *time.Time) *models.IdentityAliases {
	if updated == nil {
		return nil
	}
	a := &models.IdentityAliases{IdentityID: id, UpdatedAt: *updated}
	if idn != nil {
		a.IdentificationNumber = *idn
	}
	if sid != nil {
		a.StudentIDNumber = *sid
	}
	return a
}

// SetAliases enrolls or replaces the external keys of an identity.
func (s *PostgresStore) SetAliases(ctx context.Context, a *models.IdentityAliases) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO identity_aliases (identity_id, identification_number, student_id_number, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (identity_id) DO UPDATE
		 SET identification_number = EXCLUDED.identification_number,
		     student_id_number = EXCLUDED.student_id_number,
		     updated_at = now()
		 RETURNING updated_at`,
		a.IdentityID, a.IdentificationNumber, a.StudentIDNumber,
	).Scan(&a.UpdatedAt)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return fmt.Errorf("set aliases for %d: %w", a.IdentityID, ErrNotFound)
		}
		return fmt.Errorf("set aliases for %d: %w", a.IdentityID, err)
	}
	return nil
}

// SimilarIdentities orders other identities of the same dimensionality by
// pgvector L2 distance to identity id. Administrative lookup only.
func (s *PostgresStore) SimilarIdentities(ctx context.Context, id int64, limit int) ([]models.SimilarIdentity, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx,
		`WITH target AS (SELECT embedding FROM face_identities WHERE id = $1)
		 SELECT f.id, f.embedding <-> t.embedding AS distance
		 FROM face_identities f, target t
		 WHERE f.id <> $1 AND vector_dims(f.embedding) = vector_dims(t.embedding)
		 ORDER BY distance
		 LIMIT $2`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("similar identities: %w", err)
	}
	defer rows.Close()

	out := []models.SimilarIdentity{}
	for rows.Next() {
		var m models.SimilarIdentity
		if err := rows.Scan(&m.ID, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan similar identity: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Detection log ---

func (s *PostgresStore) InsertDetection(ctx context.Context, e *models.DetectionLogEntry) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO camera_logs (camera_id, identity_id, time_detect, face_image) VALUES ($1, $2, $3, $4) RETURNING id`,
		e.CameraID, e.IdentityID, e.TimeDetect, e.Image,
	).Scan(&e.ID)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return fmt.Errorf("insert detection for identity %d: %w", e.IdentityID, ErrNotFound)
		}
		return fmt.Errorf("insert detection: %w", err)
	}
	return nil
}

// QueryByIdentityKey returns the sightings of the identity whose id,
// identification number or student id number equals key, oldest first.
func (s *PostgresStore) QueryByIdentityKey(ctx context.Context, key string) ([]models.Sighting, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT l.time_detect, l.face_image
		 FROM camera_logs l
		 WHERE l.identity_id IN (
		     SELECT id FROM face_identities WHERE id::text = $1
		     UNION
		     SELECT identity_id FROM identity_aliases
		     WHERE identification_number = $1 OR student_id_number = $1
		 )
		 ORDER BY l.time_detect ASC, l.id ASC`, key)
	if err != nil {
		return nil, fmt.Errorf("query sightings: %w", err)
	}
	defer rows.Close()

	out := []models.Sighting{}
	for rows.Next() {
		var sg models.Sighting
		if err := rows.Scan(&sg.TimeDetect, &sg.Image); err != nil {
			return nil, fmt.Errorf("scan sighting: %w", err)
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

// AggregateByMinute counts distinct identities per minute for one camera.
func (s *PostgresStore) AggregateByMinute(ctx context.Context, cameraID string) ([]models.MinuteBucket, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT date_trunc('minute', time_detect) AS minute, COUNT(DISTINCT identity_id)
		 FROM camera_logs
		 WHERE camera_id = $1
		 GROUP BY minute
		 ORDER BY minute ASC`, cameraID)
	if err != nil {
		return nil, fmt.Errorf("aggregate by minute: %w", err)
	}
	defer rows.Close()

	out := []models.MinuteBucket{}
	for rows.Next() {
		var b models.MinuteBucket
		if err := rows.Scan(&b.Minute, &b.People); err != nil {
			return nil, fmt.Errorf("scan minute bucket: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
