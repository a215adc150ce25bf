// Package hashindex computes content fingerprints and groups files that
// share one.
package hashindex

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/zeebo/blake3"

	"go-image-organizer/internal/helpers"
	"go-image-organizer/internal/naming"
)

// Supported algorithms
const (
	AlgoMD5    = "md5"
	AlgoBLAKE3 = "blake3"
)

// digestSize is 128 bits for every algorithm, so ids stay the same length
// whichever one is configured.
const digestSize = 16

// Hasher produces a fixed 128-bit hex digest.
type Hasher struct {
	algo string
}

// NewHasher returns a Hasher for algo. An empty algo means md5.
func NewHasher(algo string) (*Hasher, error) {
	switch strings.ToLower(algo) {
	case "", AlgoMD5:
		return &Hasher{algo: AlgoMD5}, nil
	case AlgoBLAKE3:
		return &Hasher{algo: AlgoBLAKE3}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algo)
	}
}

// Algorithm returns the configured algorithm name.
func (h *Hasher) Algorithm() string { return h.algo }

func (h *Hasher) newHash() hash.Hash {
	if h.algo == AlgoBLAKE3 {
		return blake3.New()
	}
	return md5.New()
}

// Sum hashes data.
func (h *Hasher) Sum(data []byte) string {
	hh := h.newHash()
	hh.Write(data)
	return encode(hh)
}

// File streams the file at path through the hash and returns the digest
// and the number of bytes read.
func (h *Hasher) File(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	hh := h.newHash()
	cw := &helpers.CounterWriter{Writer: hh}
	if _, err := io.Copy(cw, f); err != nil {
		return "", 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	return encode(hh), int64(cw.Total), nil
}

func encode(hh hash.Hash) string {
	sum := hh.Sum(nil)
	if len(sum) > digestSize {
		sum = sum[:digestSize]
	}
	return hex.EncodeToString(sum)
}

// Hash returns the md5 hex digest of data.
func Hash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Entry is one (file, digest) pair from a scan pass.
type Entry struct {
	Name string
	Hash string
}

// GroupDuplicates returns, per digest, the names sharing it. Only groups
// with two or more names are returned, and each group is sorted.
func GroupDuplicates(entries []Entry) map[string][]string {
	byHash := make(map[string][]string)
	for _, e := range entries {
		byHash[e.Hash] = append(byHash[e.Hash], e.Name)
	}
	groups := make(map[string][]string)
	for digest, names := range byHash {
		if len(names) < 2 {
			continue
		}
		sort.Strings(names)
		groups[digest] = names
	}
	return groups
}

// Primary returns the name kept when a group is deduplicated: the
// lexicographically smallest one.
func Primary(names []string) string {
	if len(names) == 0 {
		return ""
	}
	primary := names[0]
	for _, n := range names[1:] {
		if n < primary {
			primary = n
		}
	}
	return primary
}

// Siblings returns group without self, preserving order.
func Siblings(group []string, self string) []string {
	out := make([]string, 0, len(group))
	for _, n := range group {
		if n != self {
			out = append(out, n)
		}
	}
	return out
}

// ImageID derives a record id from the content digest and original file
// name. The same file scanned twice always yields the same id.
func ImageID(contentHash, originalName string) string {
	prefix := contentHash
	if len(prefix) > 12 {
		prefix = prefix[:12]
	}
	return prefix + "_" + naming.Sanitize(originalName)
}
