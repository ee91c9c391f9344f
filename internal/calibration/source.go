package calibration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// ErrCalibrationUnavailable marks a missing calibration document.
var ErrCalibrationUnavailable = errors.New("calibration: unavailable")

var subjectPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Source fetches raw calibration documents.
type Source interface {
	Fetch(ctx context.Context, subject string) ([]byte, error)
}

// Sink persists calibration documents.
type Sink interface {
	Save(ctx context.Context, subject string, data []byte) error
}

// Load reads the subject's profile from src. Any failure yields the identity
// profile and a warning; calibration never blocks inference.
func Load(ctx context.Context, src Source, subject string, logger zerolog.Logger) Profile {
	log := logger.With().Str("component", "calibration").Str("subject", subject).Logger()
	if src == nil {
		log.Info().Msg("no calibration source configured; using identity profile")
		return Identity(subject)
	}

	data, err := src.Fetch(ctx, subject)
	if err != nil {
		log.Warn().Err(err).Msg("calibration unavailable; using identity profile")
		return Identity(subject)
	}

	profile, err := Parse(data)
	if err != nil {
		log.Warn().Err(fmt.Errorf("%w: %v", ErrCalibrationUnavailable, err)).Msg("calibration malformed; using identity profile")
		return Identity(subject)
	}

	log.Info().Bool("raw_stats", profile.hasRaw).Msg("calibration loaded")
	return profile
}

// FileSource stores one <subject>.json document per subject in Dir.
type FileSource struct {
	Dir string
}

// NewFileSource returns a directory-backed source.
func NewFileSource(dir string) *FileSource {
	return &FileSource{Dir: dir}
}

func (f *FileSource) path(subject string) (string, error) {
	if !subjectPattern.MatchString(subject) {
		return "", fmt.Errorf("calibration: invalid subject id %q", subject)
	}
	return filepath.Join(f.Dir, subject+".json"), nil
}

// Fetch reads the subject document.
func (f *FileSource) Fetch(_ context.Context, subject string) ([]byte, error) {
	p, err := f.path(subject)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found", ErrCalibrationUnavailable, p)
	}
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}
	return data, nil
}

// Save writes the subject document, creating Dir if needed.
func (f *FileSource) Save(_ context.Context, subject string, data []byte) error {
	p, err := f.path(subject)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("create calibration dir: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write calibration file: %w", err)
	}
	return os.Rename(tmp, p)
}

// RedisSource keeps documents under KeyPrefix+subject.
type RedisSource struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisSource wraps a go-redis client.
func NewRedisSource(client redis.Cmdable, keyPrefix string) *RedisSource {
	return &RedisSource{client: client, keyPrefix: keyPrefix}
}

// Fetch issues GET on the subject key.
func (r *RedisSource) Fetch(ctx context.Context, subject string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.keyPrefix+subject).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: key %s missing", ErrCalibrationUnavailable, r.keyPrefix+subject)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get calibration: %w", err)
	}
	return data, nil
}

// Save stores the document without expiry.
func (r *RedisSource) Save(ctx context.Context, subject string, data []byte) error {
	if err := r.client.Set(ctx, r.keyPrefix+subject, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set calibration: %w", err)
	}
	return nil
}

var (
	_ Source = (*FileSource)(nil)
	_ Sink   = (*FileSource)(nil)
	_ Source = (*RedisSource)(nil)
	_ Sink   = (*RedisSource)(nil)
)
