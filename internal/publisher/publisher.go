// Package publisher uploads deployment archives to a remote artifact store.
package publisher

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Sink is a path-addressable upload target.
type Sink interface {
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64) error
}

// Publisher uploads the contents of an artifacts directory to one bucket.
type Publisher struct {
	sink   Sink
	bucket string
}

func New(sink Sink, bucket string) *Publisher {
	return &Publisher{sink: sink, bucket: bucket}
}

// PublishAll uploads every file directly under artifactsDir to
// prefix/<filename>, one at a time in directory-listing order. The first
// failure aborts the remaining uploads; already-uploaded artifacts are not
// rolled back. Returns the keys uploaded so far.
func (p *Publisher) PublishAll(ctx context.Context, artifactsDir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(artifactsDir)
	if err != nil {
		return nil, fmt.Errorf("reading artifacts directory: %w", err)
	}

	var uploaded []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		key := path.Join(prefix, entry.Name())
		if err := p.publishOne(ctx, filepath.Join(artifactsDir, entry.Name()), key); err != nil {
			return uploaded, fmt.Errorf("uploading %s: %w", entry.Name(), err)
		}

		log.Info().Str("bucket", p.bucket).Str("key", key).Msg("Uploaded artifact")
		uploaded = append(uploaded, key)
	}
	return uploaded, nil
}

func (p *Publisher) publishOne(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	return p.sink.Put(ctx, p.bucket, key, f, info.Size())
}
