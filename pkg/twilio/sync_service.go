package twilio

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ClareAI/astra-call-relay/pkg/logger"
	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	syncv1 "github.com/twilio/twilio-go/rest/sync/v1"
	"go.uber.org/zap"
)

// DefaultDocumentTTL is the lifetime of a Sync document in seconds (1 day)
const DefaultDocumentTTL = 86400

// ErrDocumentNotFound is returned when a document does not exist
var ErrDocumentNotFound = errors.New("sync document not found")

// documentAPI is the subset of the Sync v1 API used here
type documentAPI interface {
	FetchDocument(ServiceSid string, Sid string) (*syncv1.SyncV1Document, error)
	UpdateDocument(ServiceSid string, Sid string, params *syncv1.UpdateDocumentParams) (*syncv1.SyncV1Document, error)
	CreateDocument(ServiceSid string, params *syncv1.CreateDocumentParams) (*syncv1.SyncV1Document, error)
}

// SyncDocumentService stores JSON documents in a Twilio Sync service
type SyncDocumentService struct {
	api        documentAPI
	serviceSID string
	ttl        int
}

// NewSyncDocumentService creates a Sync client for the given service
func NewSyncDocumentService(accountSID, authToken, serviceSID string) (*SyncDocumentService, error) {
	if accountSID == "" || authToken == "" || serviceSID == "" {
		return nil, errors.New("twilio sync requires account sid, auth token and service sid")
	}
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken})
	return &SyncDocumentService{api: rc.SyncV1, serviceSID: serviceSID, ttl: DefaultDocumentTTL}, nil
}

// PutDocument creates or replaces the document named uniqueName.
// An existing document is updated in place; a missing one is created with the TTL.
func (s *SyncDocumentService) PutDocument(uniqueName string, data interface{}) error {
	_, err := s.api.FetchDocument(s.serviceSID, uniqueName)
	switch {
	case err == nil:
		params := &syncv1.UpdateDocumentParams{}
		params.SetData(data)
		doc, err := s.api.UpdateDocument(s.serviceSID, uniqueName, params)
		if err != nil {
			return fmt.Errorf("update sync document %s: %w", uniqueName, err)
		}
		logger.Base().Info("Sync document updated", zap.String("document", uniqueName), zap.String("sid", sid(doc)))
		return nil
	case isNotFound(err):
		params := &syncv1.CreateDocumentParams{}
		params.SetUniqueName(uniqueName)
		params.SetData(data)
		params.SetTtl(s.ttl)
		doc, err := s.api.CreateDocument(s.serviceSID, params)
		if err != nil {
			return fmt.Errorf("create sync document %s: %w", uniqueName, err)
		}
		logger.Base().Info("Sync document created", zap.String("document", uniqueName), zap.String("sid", sid(doc)))
		return nil
	default:
		return fmt.Errorf("fetch sync document %s: %w", uniqueName, err)
	}
}

// GetDocument decodes the document's data into out
func (s *SyncDocumentService) GetDocument(uniqueName string, out interface{}) error {
	doc, err := s.api.FetchDocument(s.serviceSID, uniqueName)
	if err != nil {
		if isNotFound(err) {
			return ErrDocumentNotFound
		}
		return fmt.Errorf("fetch sync document %s: %w", uniqueName, err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return err
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return ErrDocumentNotFound
	}
	return json.Unmarshal(envelope.Data, out)
}

func isNotFound(err error) bool {
	var restErr *client.TwilioRestError
	return errors.As(err, &restErr) && restErr.Status == http.StatusNotFound
}

func sid(doc *syncv1.SyncV1Document) string {
	if doc == nil || doc.Sid == nil {
		return ""
	}
	return *doc.Sid
}
