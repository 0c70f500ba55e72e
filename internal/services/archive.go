package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/messagely/apiserver/internal/logging"
	"github.com/messagely/apiserver/internal/storage"
	"github.com/messagely/apiserver/types"
	"github.com/oklog/ulid/v2"
)

// ErrArchiveDisabled is returned when thread export is requested but no
// object storage backend is configured.
var ErrArchiveDisabled = errors.New("thread archive is not configured")

const archivePrefix = "archives"

// ObjectStore is the subset of object storage the archive needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Bucket() string
}

// ThreadSource lists a user's threads.
type ThreadSource interface {
	SentBy(ctx context.Context, username string) ([]types.Message, error)
	ReceivedBy(ctx context.Context, username string) ([]types.Message, error)
}

// ArchiveService exports a user's sent and received threads as a JSON
// document in object storage.
type ArchiveService struct {
	threads ThreadSource
	objects ObjectStore
	now     func() time.Time
}

func NewArchiveService(threads ThreadSource, objects ObjectStore) *ArchiveService {
	return &ArchiveService{
		threads: threads,
		objects: objects,
		now:     time.Now,
	}
}

func (s *ArchiveService) Export(ctx context.Context, username string) (types.Archive, error) {
	sent, err := s.threads.SentBy(ctx, username)
	if err != nil {
		return types.Archive{}, err
	}
	received, err := s.threads.ReceivedBy(ctx, username)
	if err != nil {
		return types.Archive{}, err
	}

	now := s.now().UTC()
	data, err := json.Marshal(types.ThreadArchive{
		Username:   username,
		ExportedAt: now,
		Sent:       sent,
		Received:   received,
	})
	if err != nil {
		return types.Archive{}, fmt.Errorf("encode archive: %w", err)
	}

	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	key := archiveKey(username, id)
	if err := s.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return types.Archive{}, fmt.Errorf("store archive: %w", err)
	}

	logging.FromContext(ctx).Info("threads exported",
		slog.String("username", username),
		slog.String("key", key),
		slog.Int("sent", len(sent)),
		slog.Int("received", len(received)),
	)
	return types.Archive{
		ID:       id,
		Key:      key,
		Bucket:   s.objects.Bucket(),
		Sent:     len(sent),
		Received: len(received),
	}, nil
}

// Open returns the stored export id of username. The caller closes the
// reader.
func (s *ArchiveService) Open(ctx context.Context, username, id string) (io.ReadCloser, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return nil, &Error{Kind: KindBadInput, Msg: "invalid archive id", Err: err}
	}
	rc, err := s.objects.Get(ctx, archiveKey(username, parsed.String()))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, &Error{Kind: KindNotFound, Msg: fmt.Sprintf("archive not found: %s", id), Err: err}
		}
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return rc, nil
}

func archiveKey(username, id string) string {
	return path.Join(archivePrefix, username, id+".json")
}
