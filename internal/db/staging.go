package db

import (
	"sync"

	"github.com/byjit/jules-board/pkg/models"
)

// StagedItems is a proposed board change set: new stories plus dependency
// links between them (or onto existing stories), keyed by slug or title
// until commit resolves them.
type StagedItems struct {
	Stories      []*models.Story
	Dependencies []*models.Dependency
}

// StagingManager provides thread-safe in-memory storage for staged changes.
type StagingManager struct {
	mu     sync.RWMutex
	staged map[string]*StagedItems
}

func NewStagingManager() *StagingManager {
	return &StagingManager{
		staged: make(map[string]*StagedItems),
	}
}

func (sm *StagingManager) AddStory(planID string, story *models.Story) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.staged[planID] == nil {
		sm.staged[planID] = &StagedItems{
			Stories:      []*models.Story{},
			Dependencies: []*models.Dependency{},
		}
	}
	sm.staged[planID].Stories = append(sm.staged[planID].Stories, story)
}

func (sm *StagingManager) AddDependency(planID string, dep *models.Dependency) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.staged[planID] == nil {
		sm.staged[planID] = &StagedItems{
			Stories:      []*models.Story{},
			Dependencies: []*models.Dependency{},
		}
	}
	sm.staged[planID].Dependencies = append(sm.staged[planID].Dependencies, dep)
}

func (sm *StagingManager) GetAndClear(planID string) *StagedItems {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	items, ok := sm.staged[planID]
	if !ok {
		return &StagedItems{
			Stories:      []*models.Story{},
			Dependencies: []*models.Dependency{},
		}
	}

	delete(sm.staged, planID)
	return items
}

func (sm *StagingManager) Peek(planID string) *StagedItems {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	items, ok := sm.staged[planID]
	if !ok {
		return &StagedItems{
			Stories:      []*models.Story{},
			Dependencies: []*models.Dependency{},
		}
	}

	return items
}
