package credential

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Refresh(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		_, _ = fmt.Fprintf(w, `{"access_token":"token-%d","expires_on":"1709300000"}`, n)
	}))
	defer server.Close()

	p, err := Start(context.Background(), Options{
		IMDS:            IMDSOptions{Endpoint: server.URL, Client: noRetryClient()},
		RefreshInterval: 10 * time.Millisecond,
		Logger:          log.NewLogger(),
	})
	require.NoError(t, err)
	defer p.Stop()

	assert.Equal(t, "token-1", p.Token().AccessToken)

	require.Eventually(t, func() bool {
		return p.Token().AccessToken != "token-1"
	}, time.Second, 5*time.Millisecond)

	var cred azcore.TokenCredential = p
	token, err := cred.GetToken(context.Background(), policy.TokenRequestOptions{Scopes: []string{StorageResource + ".default"}})
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)
	assert.Equal(t, time.Unix(1709300000, 0), token.ExpiresOn)
}

func TestProvider_FailedRenewalKeepsToken(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) > 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"first","expires_on":"1709300000"}`))
	}))
	defer server.Close()

	p, err := Start(context.Background(), Options{
		IMDS:            IMDSOptions{Endpoint: server.URL, Client: noRetryClient()},
		RefreshInterval: 5 * time.Millisecond,
		Logger:          log.NewLogger(),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	p.Stop()

	assert.Equal(t, "first", p.Token().AccessToken)
}

func TestStart_FirstFetchFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	p, err := Start(context.Background(), Options{IMDS: IMDSOptions{Endpoint: server.URL, Client: noRetryClient()}})

	assert.Nil(t, p)
	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, http.StatusForbidden, credErr.StatusCode)
}

func TestProvider_StopIsPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"t"}`))
	}))
	defer server.Close()

	p, err := Start(context.Background(), Options{IMDS: IMDSOptions{Endpoint: server.URL, Client: noRetryClient()}})
	require.NoError(t, err)

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("refresh loop did not stop")
	}
}
