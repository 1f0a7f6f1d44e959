package session

import (
	"context"
	"errors"

	"github.com/ClareAI/astra-call-relay/pkg/twilio"
)

// documentStore is satisfied by twilio.SyncDocumentService
type documentStore interface {
	PutDocument(uniqueName string, data interface{}) error
	GetDocument(uniqueName string, out interface{}) error
}

// SyncStore keeps one Twilio Sync document per session, named by the session key
type SyncStore struct {
	docs documentStore
}

func NewSyncStore(docs documentStore) *SyncStore {
	return &SyncStore{docs: docs}
}

func (s *SyncStore) Put(ctx context.Context, key string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.docs.PutDocument(key, rec)
}

func (s *SyncStore) Get(ctx context.Context, key string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	var rec Record
	if err := s.docs.GetDocument(key, &rec); err != nil {
		if errors.Is(err, twilio.ErrDocumentNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}
