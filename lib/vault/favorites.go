// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

package vault

// ToggleProjectFavorite flips a project's favorite status and returns
// whether it is now a favorite. Fails with NotFound if the project
// does not exist.
func (s *Store) ToggleProjectFavorite(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return false, err
	}
	if _, ok := s.doc.Projects[name]; !ok {
		return false, newError(NotFound, "project %q not found", name)
	}

	favorites := s.doc.Favorites.Projects
	for i, existing := range favorites {
		if existing == name {
			s.doc.Favorites.Projects = append(favorites[:i], favorites[i+1:]...)
			s.scheduleSaveLocked()
			return false, nil
		}
	}
	s.doc.Favorites.Projects = append(favorites, name)
	s.scheduleSaveLocked()
	return true, nil
}

// ToggleSecretFavorite flips a secret's favorite status within a
// project and returns whether it is now a favorite. Fails with
// NotFound if the project or key does not exist.
func (s *Store) ToggleSecretFavorite(projectName, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return false, err
	}
	if _, err := s.lookupSecretLocked(projectName, key); err != nil {
		return false, err
	}

	keys := s.doc.Favorites.Secrets[projectName]
	for i, existing := range keys {
		if existing == key {
			remaining := append(keys[:i], keys[i+1:]...)
			if len(remaining) == 0 {
				delete(s.doc.Favorites.Secrets, projectName)
			} else {
				s.doc.Favorites.Secrets[projectName] = remaining
			}
			s.scheduleSaveLocked()
			return false, nil
		}
	}
	s.doc.Favorites.Secrets[projectName] = append(keys, key)
	s.scheduleSaveLocked()
	return true, nil
}
