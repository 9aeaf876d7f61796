// Package importer copies identities, aliases and detection logs out of the
// legacy MySQL database into the Postgres store, keeping identity ids.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/your-org/facelog/internal/models"
	"github.com/your-org/facelog/internal/storage"
	"github.com/your-org/facelog/internal/vector"
)

// Source is satisfied by *storage.LegacyStore.
type Source interface {
	CountIdentities(ctx context.Context) (int, error)
	CountCameraLogs(ctx context.Context) (int, error)
	EachIdentity(ctx context.Context, fn func(storage.LegacyIdentity) error) error
	EachCameraLog(ctx context.Context, fn func(storage.LegacyCameraLog) error) error
}

// Target is satisfied by *storage.PostgresStore.
type Target interface {
	InsertIdentity(ctx context.Context, id *models.Identity) error
	SetAliases(ctx context.Context, a *models.IdentityAliases) error
	InsertDetection(ctx context.Context, e *models.DetectionLogEntry) error
}

type ImageStore interface {
	PutImage(ctx context.Context, key string, data []byte) error
}

// Progress is advanced once per copied row; *progressbar.ProgressBar fits.
type Progress interface {
	Add(n int) error
}

type Options struct {
	SkipLogs bool
}

type Stats struct {
	Identities        int
	SkippedIdentities int
	Aliases           int
	Detections        int
	SkippedDetections int
}

type Importer struct {
	src    Source
	dst    Target
	images ImageStore
	codec  vector.Codec
}

func New(src Source, dst Target, images ImageStore, codec vector.Codec) *Importer {
	return &Importer{src: src, dst: dst, images: images, codec: codec}
}

// Total is the number of rows Run will visit.
func (im *Importer) Total(ctx context.Context, opts Options) (int, error) {
	n, err := im.src.CountIdentities(ctx)
	if err != nil {
		return 0, err
	}
	if opts.SkipLogs {
		return n, nil
	}
	logs, err := im.src.CountCameraLogs(ctx)
	if err != nil {
		return 0, err
	}
	return n + logs, nil
}

// Run copies identities first, then logs. Identities whose id is already
// taken are skipped, so an interrupted import can be rerun; logs are not
// deduplicated and should be imported once with SkipLogs unset.
func (im *Importer) Run(ctx context.Context, opts Options, progress Progress) (Stats, error) {
	var st Stats
	step := func() {
		if progress != nil {
			_ = progress.Add(1)
		}
	}

	err := im.src.EachIdentity(ctx, func(li storage.LegacyIdentity) error {
		defer step()
		return im.importIdentity(ctx, li, &st)
	})
	if err != nil {
		return st, err
	}

	if opts.SkipLogs {
		return st, nil
	}

	err = im.src.EachCameraLog(ctx, func(l storage.LegacyCameraLog) error {
		defer step()
		e := &models.DetectionLogEntry{
			CameraID:   l.CameraID,
			IdentityID: l.FaceID,
			TimeDetect: l.TimeDetect.UTC(),
			Image:      l.FaceImage,
		}
		if err := im.dst.InsertDetection(ctx, e); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				slog.Warn("skip log of unknown identity", "face_id", l.FaceID, "camera_id", l.CameraID)
				st.SkippedDetections++
				return nil
			}
			return fmt.Errorf("import log of identity %d: %w", l.FaceID, err)
		}
		st.Detections++
		return nil
	})
	return st, err
}

func (im *Importer) importIdentity(ctx context.Context, li storage.LegacyIdentity, st *Stats) error {
	emb, err := im.codec.Decode(li.FaceVector)
	if err != nil {
		slog.Warn("skip identity with unreadable vector", "face_id", li.FaceID, "error", err)
		st.SkippedIdentities++
		return nil
	}

	id := &models.Identity{ID: li.FaceID, Embedding: emb}

	// The image goes first: a row whose image upload failed would be skipped
	// as a conflict on the rerun and never get its image.
	if len(li.FaceImage) > 0 && im.images != nil {
		id.ImageKey = storage.IdentityImageKey(li.FaceID)
		if err := im.images.PutImage(ctx, id.ImageKey, li.FaceImage); err != nil {
			return fmt.Errorf("import image of identity %d: %w", li.FaceID, err)
		}
	}

	if err := im.dst.InsertIdentity(ctx, id); err != nil {
		if errors.Is(err, storage.ErrIdentityConflict) {
			st.SkippedIdentities++
			return nil
		}
		return fmt.Errorf("import identity %d: %w", li.FaceID, err)
	}
	st.Identities++

	if li.IdentificationNumber == "" && li.StudentIDNumber == "" {
		return nil
	}
	err = im.dst.SetAliases(ctx, &models.IdentityAliases{
		IdentityID:           li.FaceID,
		IdentificationNumber: li.IdentificationNumber,
		StudentIDNumber:      li.StudentIDNumber,
	})
	if err != nil {
		return fmt.Errorf("import aliases of identity %d: %w", li.FaceID, err)
	}
	st.Aliases++
	return nil
}
