// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import "time"

// expiringWindow is how far into the future a secret's expiry counts
// as "expiring soon" for Statistics.ExpiringSecrets.
const expiringWindow = 7 * 24 * time.Hour

// Statistics summarizes the vault's current contents.
type Statistics struct {
	TotalProjects   int  `json:"totalProjects"`
	TotalSecrets    int  `json:"totalSecrets"`
	ExpiringSecrets int  `json:"expiringSecrets"`
	HasExpired      bool `json:"hasExpired"`
}

// GetStatistics computes totals and expiry counts across all
// projects.
func (s *Store) GetStatistics() (Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return Statistics{}, err
	}

	now := s.clk.Now()
	threshold := now.Add(expiringWindow)

	var stats Statistics
	stats.TotalProjects = len(s.doc.Projects)

	for _, project := range s.doc.Projects {
		stats.TotalSecrets += len(project.Secrets)
		for _, secret := range project.Secrets {
			if secret.ExpiresAt == nil {
				continue
			}
			if secret.ExpiresAt.Before(now) {
				stats.HasExpired = true
			}
			if !secret.ExpiresAt.After(threshold) {
				stats.ExpiringSecrets++
			}
		}
	}

	return stats, nil
}
