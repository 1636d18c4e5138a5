// Package objectkey maps blob handles to storage object keys.
package objectkey

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator defines the interface for object key generation strategies
type Generator interface {
	// ObjectKey returns the storage key for handle
	ObjectKey(handle string) string
}

// NewHandle returns a fresh random blob handle
func NewHandle() string {
	return uuid.NewString()
}

// ValidHandle reports whether handle is a well formed UUID. Backends refuse
// anything else so a handle can never escape the key layout.
func ValidHandle(handle string) bool {
	_, err := uuid.Parse(handle)
	return err == nil && !strings.ContainsAny(handle, "/\\")
}

// FlatGenerator stores every blob directly under Prefix
type FlatGenerator struct {
	Prefix string
}

func NewFlatGenerator(prefix string) *FlatGenerator {
	return &FlatGenerator{Prefix: strings.Trim(prefix, "/")}
}

func (g *FlatGenerator) ObjectKey(handle string) string {
	if g.Prefix == "" {
		return handle
	}
	return fmt.Sprintf("%s/%s", g.Prefix, handle)
}

// ShardedGenerator provides Git-style sharded storage
// blobs/ab/cd1234ef5678...
type ShardedGenerator struct {
	Prefix string
	// ShardLength controls how many characters to use for sharding (default: 2)
	ShardLength int
}

func NewShardedGenerator(prefix string) *ShardedGenerator {
	return &ShardedGenerator{
		Prefix:      strings.Trim(prefix, "/"),
		ShardLength: 2,
	}
}

func (g *ShardedGenerator) ObjectKey(handle string) string {
	id := strings.ReplaceAll(handle, "-", "")

	shardLength := g.ShardLength
	if shardLength <= 0 {
		shardLength = 2
	}
	if len(id) <= shardLength {
		return g.join(id)
	}

	return g.join(id[:shardLength] + "/" + id[shardLength:])
}

func (g *ShardedGenerator) join(rest string) string {
	if g.Prefix == "" {
		return rest
	}
	return g.Prefix + "/" + rest
}

// HashedGenerator shards on a hash of the handle, spreading sequential
// handles evenly
type HashedGenerator struct {
	Prefix      string
	ShardLength int
}

func NewHashedGenerator(prefix string) *HashedGenerator {
	return &HashedGenerator{
		Prefix:      strings.Trim(prefix, "/"),
		ShardLength: 2,
	}
}

func (g *HashedGenerator) ObjectKey(handle string) string {
	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(handle)))
	shard := hash[:g.ShardLength]

	key := fmt.Sprintf("%s/%s", shard, handle)
	if g.Prefix != "" {
		key = g.Prefix + "/" + key
	}
	return key
}

// NewRecommendedGenerator returns the recommended generator for new installations
func NewRecommendedGenerator() Generator {
	return NewShardedGenerator("blobs")
}
