package memory

import (
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/mos/internal/domain"
)

type referenceKey struct {
	line domain.ProductLine
	kind domain.ReferenceKind
}

// referenceRepositoryInMemory — in-memory реализация ReferenceRepository.
type referenceRepositoryInMemory struct {
	mu      sync.RWMutex
	entries map[referenceKey]map[int64]string
	nextID  map[referenceKey]int64
}

// NewReferenceRepository возвращает in-memory репозиторий справочников.
func NewReferenceRepository() domain.ReferenceRepository {
	return &referenceRepositoryInMemory{
		entries: make(map[referenceKey]map[int64]string),
		nextID:  make(map[referenceKey]int64),
	}
}

func (r *referenceRepositoryInMemory) List(line domain.ProductLine, kind domain.ReferenceKind) ([]domain.ReferenceEntry, error) {
	if !kind.ValidFor(line) {
		return nil, domain.ErrReferenceNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket := r.entries[referenceKey{line, kind}]
	result := make([]domain.ReferenceEntry, 0, len(bucket))
	for id, name := range bucket {
		result = append(result, domain.ReferenceEntry{ID: id, Name: name})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result, nil
}

func (r *referenceRepositoryInMemory) Add(line domain.ProductLine, kind domain.ReferenceKind, name string) (domain.ReferenceEntry, error) {
	if !kind.ValidFor(line) {
		return domain.ReferenceEntry{}, domain.ErrReferenceNotFound
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ReferenceEntry{}, domain.ErrReferenceNameRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := referenceKey{line, kind}
	bucket, ok := r.entries[key]
	if !ok {
		bucket = make(map[int64]string)
		r.entries[key] = bucket
	}

	for _, existing := range bucket {
		if existing == name {
			return domain.ReferenceEntry{}, domain.ErrReferenceNameTaken
		}
	}

	r.nextID[key]++
	id := r.nextID[key]
	bucket[id] = name

	return domain.ReferenceEntry{ID: id, Name: name}, nil
}

func (r *referenceRepositoryInMemory) Rename(line domain.ProductLine, kind domain.ReferenceKind, id int64, name string) error {
	if !kind.ValidFor(line) {
		return domain.ErrReferenceNotFound
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ErrReferenceNameRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.entries[referenceKey{line, kind}]
	if _, ok := bucket[id]; !ok {
		return domain.ErrReferenceNotFound
	}

	for existingID, existing := range bucket {
		if existingID != id && existing == name {
			return domain.ErrReferenceNameTaken
		}
	}
	bucket[id] = name

	return nil
}

func (r *referenceRepositoryInMemory) Remove(line domain.ProductLine, kind domain.ReferenceKind, id int64) error {
	if !kind.ValidFor(line) {
		return domain.ErrReferenceNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.entries[referenceKey{line, kind}]
	if _, ok := bucket[id]; !ok {
		return domain.ErrReferenceNotFound
	}
	delete(bucket, id)

	return nil
}

var _ domain.ReferenceRepository = (*referenceRepositoryInMemory)(nil)
