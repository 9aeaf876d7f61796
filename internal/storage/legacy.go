package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// LegacyIdentity is a FaceIdentityStore row of the MySQL database the
// service replaced.
type LegacyIdentity struct {
	FaceID               int64
	FaceVector           string
	FaceImage            []byte
	IdentificationNumber string
	StudentIDNumber      string
}

// LegacyCameraLog is a CameraLogs row.
type LegacyCameraLog struct {
	CameraID   string
	FaceID     int64
	TimeDetect time.Time
	FaceImage  []byte
}

// LegacyStore reads the old MySQL schema. It never writes.
type LegacyStore struct {
	db *sql.DB
}

func NewLegacyStore(dsn string) (*LegacyStore, error) {
	if dsn == "" {
		return nil, errors.New("legacy MySQL DSN is required")
	}

	mcfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse legacy dsn: %w", err)
	}
	mcfg.ParseTime = true
	mcfg.Loc = time.UTC

	connector, err := mysql.NewConnector(mcfg)
	if err != nil {
		return nil, fmt.Errorf("open legacy database: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping legacy database: %w", err)
	}

	return &LegacyStore{db: db}, nil
}

func (s *LegacyStore) Close() error {
	return s.db.Close()
}

func (s *LegacyStore) CountIdentities(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM FaceIdentityStore`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count legacy identities: %w", err)
	}
	return n, nil
}

func (s *LegacyStore) CountCameraLogs(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM CameraLogs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count legacy camera logs: %w", err)
	}
	return n, nil
}

// EachIdentity calls fn for every identity in FaceID order and stops at the
// first error.
func (s *LegacyStore) EachIdentity(ctx context.Context, fn func(LegacyIdentity) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT FaceID, FaceVector, FaceImage, IdentificationNumber, StudentIDNumber
		 FROM FaceIdentityStore ORDER BY FaceID ASC`)
	if err != nil {
		return fmt.Errorf("query legacy identities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			li       LegacyIdentity
			idn, sid sql.NullString
		)
		if err := rows.Scan(&li.FaceID, &li.FaceVector, &li.FaceImage, &idn, &sid); err != nil {
			return fmt.Errorf("scan legacy identity: %w", err)
		}
		li.IdentificationNumber = idn.String
		li.StudentIDNumber = sid.String
		if err := fn(li); err != nil {
			return err
		}
	}
	return rows.Err()
}

// EachCameraLog calls fn for every log row in detection time order.
func (s *LegacyStore) EachCameraLog(ctx context.Context, fn func(LegacyCameraLog) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT CameraID, FaceID, TimeDetect, FaceImage FROM CameraLogs ORDER BY TimeDetect ASC`)
	if err != nil {
		return fmt.Errorf("query legacy camera logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l LegacyCameraLog
		if err := rows.Scan(&l.CameraID, &l.FaceID, &l.TimeDetect, &l.FaceImage); err != nil {
			return fmt.Errorf("scan legacy camera log: %w", err)
		}
		if err := fn(l); err != nil {
			return err
		}
	}
	return rows.Err()
}
