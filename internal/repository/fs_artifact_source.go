package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	domrepo "InvSight/internal/domain/repository"
)

// FSArtifactSource reads artifact documents below a root directory.
type FSArtifactSource struct {
	root string
}

func NewFSArtifactSource(root string) *FSArtifactSource {
	return &FSArtifactSource{root: root}
}

func (s *FSArtifactSource) ReadObject(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean := filepath.Clean("/" + name)
	b, err := os.ReadFile(filepath.Join(s.root, clean))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("artifact %s not found in %s: %w", name, s.root, err)
		}
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	return b, nil
}

func (s *FSArtifactSource) Location() string { return "file://" + s.root }

var _ domrepo.ArtifactSource = (*FSArtifactSource)(nil)
