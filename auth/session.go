package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"voxhall.io/authgate/kv"
)

const sessionKeyPrefix = "authgate:session:"

func sessionKey(subjectID string) string {
	return sessionKeyPrefix + subjectID
}

// SessionStore holds the ephemeral records backing issued access tokens.
// One record per subject: login and refresh overwrite, logout deletes, and
// the backend expires the rest. An absent record is indistinguishable from
// a deleted one, deliberately.
type SessionStore struct {
	store kv.Store
}

// NewSessionStore creates a new instance of the SessionStore.
func NewSessionStore(store kv.Store) *SessionStore {
	return &SessionStore{store: store}
}

// Put writes the subject's session with the given TTL, replacing any
// previous record. Last writer wins on concurrent login/refresh races.
func (s *SessionStore) Put(ctx context.Context, subjectID, tenantID string, ttl time.Duration) error {
	record := SessionRecord{
		UserID:    subjectID,
		TenantID:  tenantID,
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return s.store.Set(ctx, sessionKey(subjectID), string(payload), ttl)
}

// Get returns the subject's live session, or nil when none exists. Only
// store failures surface as errors.
func (s *SessionStore) Get(ctx context.Context, subjectID string) (*SessionRecord, error) {
	payload, err := s.store.Get(ctx, sessionKey(subjectID))
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var record SessionRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		// A corrupt record cannot back a session; treat it as absent.
		_ = s.store.Del(ctx, sessionKey(subjectID))
		return nil, nil
	}
	return &record, nil
}

// Delete removes the subject's session. Deleting an absent session is not
// an error.
func (s *SessionStore) Delete(ctx context.Context, subjectID string) error {
	return s.store.Del(ctx, sessionKey(subjectID))
}

// DeleteByTenant sweeps every live session belonging to a tenant and
// returns how many were removed. O(total active sessions): the store has no
// secondary index by tenant, which is acceptable at expected volume.
func (s *SessionStore) DeleteByTenant(ctx context.Context, tenantID string) (int, error) {
	var removed int
	err := s.store.Scan(ctx, sessionKeyPrefix+"*", func(key string) error {
		payload, err := s.store.Get(ctx, key)
		if err == kv.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		var record SessionRecord
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			return nil
		}
		if record.TenantID != tenantID {
			return nil
		}
		if err := s.store.Del(ctx, key); err != nil {
			return err
		}
		removed++
		return nil
	})
	return removed, err
}
