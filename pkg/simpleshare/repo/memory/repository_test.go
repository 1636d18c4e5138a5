package memory_test

import (
	"testing"

	"github.com/tendant/simple-share/pkg/simpleshare"
	"github.com/tendant/simple-share/pkg/simpleshare/repo/memory"
	"github.com/tendant/simple-share/pkg/simpleshare/repo/repotest"
)

func TestMemoryRepository(t *testing.T) {
	repotest.Run(t, func(t *testing.T) simpleshare.Repository {
		return memory.New()
	})
}
