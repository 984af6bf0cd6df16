package subscription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const callbackURL = "http://monitor.local/fhir/notify"

func TestCreate(t *testing.T) {
	var received Subscription
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/Subscription", r.URL.Path)
		require.Equal(t, "application/fhir+json", r.Header.Get("Content-Type"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		created := received
		created.ID = "sub-1"
		created.Status = "requested"
		w.Header().Set("Content-Type", "application/fhir+json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(created)
	}))
	defer server.Close()

	client := NewClient(server.URL, callbackURL, zap.NewNop())

	id, err := client.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sub-1", id)

	assert.Equal(t, "Subscription", received.ResourceType)
	assert.Equal(t, "requested", received.Status)
	assert.Equal(t, cbcCriteria, received.Criteria)
	assert.Equal(t, "rest-hook", received.Channel.Type)
	assert.Equal(t, callbackURL, received.Channel.Endpoint)
	assert.Equal(t, "application/fhir+json", received.Channel.Payload)
}

func TestCreate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad criteria", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, callbackURL, zap.NewNop())

	_, err := client.Create(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/Subscription/sub-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/fhir+json")
		json.NewEncoder(w).Encode(Subscription{
			ResourceType: "Subscription",
			ID:           "sub-1",
			Status:       "active",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, callbackURL, zap.NewNop())

	status, err := client.Status(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "active", status)

	_, err = client.Status(context.Background(), "")
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/Subscription", r.URL.Path)
		w.Header().Set("Content-Type", "application/fhir+json")
		w.Write([]byte(`{
			"resourceType": "Bundle",
			"total": 2,
			"entry": [
				{"resource": {"resourceType": "Subscription", "id": "sub-1", "status": "active"}},
				{"resource": {"resourceType": "Subscription", "id": "sub-2", "status": "off"}}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, callbackURL, zap.NewNop())

	subscriptions, err := client.List(context.Background())
	require.NoError(t, err)
	require.Len(t, subscriptions, 2)
	assert.Equal(t, "sub-1", subscriptions[0].ID)
	assert.Equal(t, "off", subscriptions[1].Status)
}

func TestDelete(t *testing.T) {
	deleted := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/Subscription/sub-1", r.URL.Path)
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, callbackURL, zap.NewNop())

	require.NoError(t, client.Delete(context.Background(), "sub-1"))
	assert.True(t, deleted)

	assert.Error(t, client.Delete(context.Background(), ""))
}

func TestEnsureActive_ReusesMatching(t *testing.T) {
	created := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			w.Header().Set("Content-Type", "application/fhir+json")
			bundle := searchBundle{ResourceType: "Bundle", Total: 1}
			bundle.Entry = append(bundle.Entry, struct {
				Resource Subscription `json:"resource"`
			}{Resource: Subscription{
				ResourceType: "Subscription",
				ID:           "sub-existing",
				Status:       "active",
				Criteria:     cbcCriteria,
				Channel:      Channel{Type: "rest-hook", Endpoint: callbackURL},
			}})
			json.NewEncoder(w).Encode(bundle)
		case r.Method == http.MethodPost:
			created = true
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, callbackURL, zap.NewNop())

	id, err := client.EnsureActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sub-existing", id)
	assert.False(t, created)
}

func TestEnsureActive_CreatesWhenNoneMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/fhir+json")
		switch r.Method {
		case http.MethodGet:
			// One subscription with the right criteria but switched off,
			// one pointed at a different endpoint.
			w.Write([]byte(`{
				"resourceType": "Bundle",
				"total": 2,
				"entry": [
					{"resource": {"resourceType": "Subscription", "id": "sub-off", "status": "off",
						"criteria": "` + cbcCriteria + `",
						"channel": {"type": "rest-hook", "endpoint": "` + callbackURL + `"}}},
					{"resource": {"resourceType": "Subscription", "id": "sub-other", "status": "active",
						"criteria": "` + cbcCriteria + `",
						"channel": {"type": "rest-hook", "endpoint": "http://elsewhere/notify"}}}
				]
			}`))
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(Subscription{
				ResourceType: "Subscription",
				ID:           "sub-new",
				Status:       "requested",
			})
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, callbackURL, zap.NewNop())

	id, err := client.EnsureActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sub-new", id)
}
