package postgres

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/mos/internal/domain"
)

// Проверка имени выполняется до первого обращения к базе,
// поэтому подключение здесь не нужно.
func TestReferenceRepository_PostgresRejectsBlankNames(t *testing.T) {
	refs := &referenceRepository{}

	for _, name := range []string{"", "   "} {
		if _, err := refs.Add(domain.LineCover, domain.ReferenceParty, name); !errors.Is(err, domain.ErrReferenceNameRequired) {
			t.Fatalf("add %q: expected ErrReferenceNameRequired, got %v", name, err)
		}
		if err := refs.Rename(domain.LineCover, domain.ReferenceParty, 1, name); !errors.Is(err, domain.ErrReferenceNameRequired) {
			t.Fatalf("rename to %q: expected ErrReferenceNameRequired, got %v", name, err)
		}
	}
}

func TestReferenceTableScoping(t *testing.T) {
	if _, err := referenceTable(domain.LineCover, domain.ReferenceBox); !errors.Is(err, domain.ErrReferenceNotFound) {
		t.Fatalf("box must be blade-only, got %v", err)
	}
	if table, err := referenceTable(domain.LineBlade, domain.ReferenceTrims); err != nil || table != "blade_trims" {
		t.Fatalf("unexpected trims table: %q, %v", table, err)
	}
}
