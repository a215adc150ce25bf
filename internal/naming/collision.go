package naming

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultMaxAttempts bounds collision probing.
const DefaultMaxAttempts = 10000

var (
	ErrCollisionExhausted = errors.New("no free name found")
	ErrEmptyName          = errors.New("empty candidate name")
)

// Namespace is somewhere a file name may already be taken.
type Namespace interface {
	Taken(ctx context.Context, name string) (bool, error)
}

// ResolveOptions tunes ResolveCollision.
type ResolveOptions struct {
	// Self is the item's current name. It never counts as a collision,
	// so renaming an item to the name it already has is a no-op.
	Self        string
	MaxAttempts int
}

// ResolveCollision returns the first of base+ext, base_1+ext, base_2+ext, ...
// that is free in every namespace. A single counter is shared across all
// namespaces so the local file and its blob mirror end up with the same name.
func ResolveCollision(ctx context.Context, base, ext string, opts ResolveOptions, namespaces ...Namespace) (string, error) {
	if base == "" {
		return "", ErrEmptyName
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	for i := 0; i <= maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := base + ext
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		if opts.Self != "" && candidate == opts.Self {
			return candidate, nil
		}

		free := true
		for _, ns := range namespaces {
			taken, err := ns.Taken(ctx, candidate)
			if err != nil {
				return "", fmt.Errorf("checking %s: %w", candidate, err)
			}
			if taken {
				free = false
				break
			}
		}
		if free {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s%s after %d attempts", ErrCollisionExhausted, base, ext, maxAttempts)
}

// DirNamespace is a local directory.
type DirNamespace struct {
	Dir string
}

func (d DirNamespace) Taken(_ context.Context, name string) (bool, error) {
	_, err := os.Lstat(filepath.Join(d.Dir, name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ObjectChecker is the part of a blob store collision probing needs.
type ObjectChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// BlobNamespace is a folder of a blob store. PathFor maps a file name to
// its object path.
type BlobNamespace struct {
	Store   ObjectChecker
	PathFor func(name string) string
}

func (b BlobNamespace) Taken(ctx context.Context, name string) (bool, error) {
	return b.Store.Exists(ctx, b.PathFor(name))
}

// NameSet is an in-memory namespace, handy for names reserved earlier in
// the same batch.
type NameSet map[string]struct{}

func (s NameSet) Taken(_ context.Context, name string) (bool, error) {
	_, ok := s[name]
	return ok, nil
}

// Add reserves name.
func (s NameSet) Add(name string) { s[name] = struct{}{} }
