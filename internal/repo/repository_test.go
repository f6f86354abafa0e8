package repo_test

import (
	"testing"

	"github.com/hamed0406/uptimealarm/internal/repo"
	"github.com/hamed0406/uptimealarm/internal/repo/file"
	"github.com/hamed0406/uptimealarm/internal/repo/memory"
	pg "github.com/hamed0406/uptimealarm/internal/repo/postgres"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.KV = memory.New()
	var _ repo.KV = (*file.Store)(nil)
	var _ repo.KV = (*pg.Store)(nil)
	var _ repo.KV = (*repo.WriteThrough)(nil)
}
