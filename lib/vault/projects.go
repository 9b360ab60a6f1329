// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"sort"
	"time"
)

// ProjectSummary is a lightweight view of a project for listing.
type ProjectSummary struct {
	Name        string    `json:"name"`
	SecretCount int       `json:"secretCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// GetProjects returns a summary of every project, sorted by name for
// deterministic output.
func (s *Store) GetProjects() ([]ProjectSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return nil, err
	}

	summaries := make([]ProjectSummary, 0, len(s.doc.Projects))
	for name, project := range s.doc.Projects {
		summaries = append(summaries, ProjectSummary{
			Name:        name,
			SecretCount: len(project.Secrets),
			CreatedAt:   project.CreatedAt,
			UpdatedAt:   project.UpdatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries, nil
}

// CreateProject adds a new, empty project. Fails with Conflict if a
// project with this name already exists.
func (s *Store) CreateProject(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return err
	}
	if _, exists := s.doc.Projects[name]; exists {
		return newError(Conflict, "project %q already exists", name)
	}

	now := s.clk.Now()
	s.doc.Projects[name] = &Project{
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Secrets:   make(map[string]*Secret),
	}
	s.scheduleSaveLocked()
	return nil
}

// DeleteProject removes a project and cascades its removal from
// favorites. Fails with NotFound if the project does not exist.
func (s *Store) DeleteProject(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return err
	}
	if _, exists := s.doc.Projects[name]; !exists {
		return newError(NotFound, "project %q not found", name)
	}

	delete(s.doc.Projects, name)
	s.removeProjectFromFavoritesLocked(name)
	s.scheduleSaveLocked()
	return nil
}

func (s *Store) removeProjectFromFavoritesLocked(name string) {
	filtered := s.doc.Favorites.Projects[:0:0]
	for _, projectName := range s.doc.Favorites.Projects {
		if projectName != name {
			filtered = append(filtered, projectName)
		}
	}
	s.doc.Favorites.Projects = filtered
	delete(s.doc.Favorites.Secrets, name)
}
