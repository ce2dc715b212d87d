package credential

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noRetryClient() *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = nil
	return client
}

func TestFetchIMDSToken(t *testing.T) {
	var gotQuery map[string]string
	var gotMetadata string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMetadata = r.Header.Get("Metadata")
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"secret-token","expires_on":"1709300000","resource":"https://storage.azure.com/","token_type":"Bearer"}`))
	}))
	defer server.Close()

	token, err := FetchIMDSToken(context.Background(), IMDSOptions{
		Endpoint:   server.URL,
		APIVersion: DefaultIMDSAPIVersion,
		ClientID:   "my-identity",
		Client:     noRetryClient(),
	})
	require.NoError(t, err)

	assert.Equal(t, "secret-token", token.AccessToken)
	assert.Equal(t, time.Unix(1709300000, 0), token.ExpiresOn)
	assert.Equal(t, "true", gotMetadata)
	assert.Equal(t, map[string]string{
		"api-version": "2019-08-15",
		"resource":    "https://storage.azure.com/",
		"client_id":   "my-identity",
	}, gotQuery)
}

func TestFetchIMDSToken_NumericExpiry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("client_id"))
		_, _ = w.Write([]byte(`{"access_token":"t","expires_on":1709300000}`))
	}))
	defer server.Close()

	token, err := FetchIMDSToken(context.Background(), IMDSOptions{Endpoint: server.URL, APIVersion: DefaultIMDSAPIVersion, Client: noRetryClient()})
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1709300000, 0), token.ExpiresOn)
}

func TestFetchIMDSToken_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{
			name:       "Identity not found",
			status:     http.StatusBadRequest,
			body:       `{"error":"invalid_request","error_description":"Identity not found"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Malformed body",
			status:     http.StatusOK,
			body:       `not json`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "Missing access token",
			status:     http.StatusOK,
			body:       `{"expires_on":"1709300000"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "Invalid expiry",
			status:     http.StatusOK,
			body:       `{"access_token":"t","expires_on":"soon"}`,
			wantStatus: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := FetchIMDSToken(context.Background(), IMDSOptions{Endpoint: server.URL, APIVersion: DefaultIMDSAPIVersion, Client: noRetryClient()})

			var credErr *CredentialError
			require.True(t, errors.As(err, &credErr))
			assert.Equal(t, tt.wantStatus, credErr.StatusCode)
		})
	}
}
