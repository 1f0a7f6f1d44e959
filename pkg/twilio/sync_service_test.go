package twilio

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twilio/twilio-go/client"
	syncv1 "github.com/twilio/twilio-go/rest/sync/v1"
)

type storedDoc struct {
	Data json.RawMessage
	TTL  int
}

type fakeDocuments struct {
	docs    map[string]storedDoc
	creates int
	updates int
	failAll error
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{docs: map[string]storedDoc{}}
}

func document(name string, data json.RawMessage) *syncv1.SyncV1Document {
	var doc syncv1.SyncV1Document
	raw, _ := json.Marshal(map[string]interface{}{"sid": "ET" + name, "unique_name": name, "data": data})
	_ = json.Unmarshal(raw, &doc)
	return &doc
}

// paramFields reads the form fields of a params struct through its JSON tags
func paramFields(params interface{}) (name string, data json.RawMessage, ttl int) {
	raw, _ := json.Marshal(params)
	var fields struct {
		UniqueName string
		Data       json.RawMessage
		Ttl        int
	}
	_ = json.Unmarshal(raw, &fields)
	return fields.UniqueName, fields.Data, fields.Ttl
}

func (f *fakeDocuments) FetchDocument(serviceSid, sid string) (*syncv1.SyncV1Document, error) {
	if f.failAll != nil {
		return nil, f.failAll
	}
	doc, ok := f.docs[sid]
	if !ok {
		return nil, &client.TwilioRestError{Status: http.StatusNotFound, Code: 20404, Message: "not found"}
	}
	return document(sid, doc.Data), nil
}

func (f *fakeDocuments) UpdateDocument(serviceSid, sid string, params *syncv1.UpdateDocumentParams) (*syncv1.SyncV1Document, error) {
	f.updates++
	_, data, _ := paramFields(params)
	doc := f.docs[sid]
	doc.Data = data
	f.docs[sid] = doc
	return document(sid, data), nil
}

func (f *fakeDocuments) CreateDocument(serviceSid string, params *syncv1.CreateDocumentParams) (*syncv1.SyncV1Document, error) {
	f.creates++
	name, data, ttl := paramFields(params)
	f.docs[name] = storedDoc{Data: data, TTL: ttl}
	return document(name, data), nil
}

func TestPutDocumentCreatesThenUpdates(t *testing.T) {
	api := newFakeDocuments()
	svc := &SyncDocumentService{api: api, serviceSID: "IS1", ttl: DefaultDocumentTTL}

	require.NoError(t, svc.PutDocument("session_abc", map[string]string{"thread": "thread_1"}))
	assert.Equal(t, 1, api.creates)
	assert.Equal(t, DefaultDocumentTTL, api.docs["session_abc"].TTL)

	require.NoError(t, svc.PutDocument("session_abc", map[string]string{"thread": "thread_2"}))
	assert.Equal(t, 1, api.creates)
	assert.Equal(t, 1, api.updates)

	var out struct {
		Thread string `json:"thread"`
	}
	require.NoError(t, svc.GetDocument("session_abc", &out))
	assert.Equal(t, "thread_2", out.Thread)
}

func TestGetDocumentMissing(t *testing.T) {
	svc := &SyncDocumentService{api: newFakeDocuments(), serviceSID: "IS1"}

	var out map[string]string
	assert.ErrorIs(t, svc.GetDocument("session_nope", &out), ErrDocumentNotFound)
}

func TestPutDocumentPropagatesOtherErrors(t *testing.T) {
	api := newFakeDocuments()
	api.failAll = &client.TwilioRestError{Status: http.StatusUnauthorized, Message: "auth"}
	svc := &SyncDocumentService{api: api, serviceSID: "IS1"}

	err := svc.PutDocument("session_abc", map[string]string{"thread": "t"})

	var restErr *client.TwilioRestError
	require.True(t, errors.As(err, &restErr))
	assert.Equal(t, http.StatusUnauthorized, restErr.Status)
	assert.Zero(t, api.creates)
}

func TestNewSyncDocumentServiceRequiresCredentials(t *testing.T) {
	_, err := NewSyncDocumentService("AC1", "", "IS1")
	assert.Error(t, err)
}
