package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	// DefaultIMDSEndpoint is the instance metadata token endpoint of Azure VMs.
	DefaultIMDSEndpoint = "http://169.254.169.254/metadata/identity/oauth2/token"
	// DefaultIMDSAPIVersion ...
	DefaultIMDSAPIVersion = "2019-08-15"
	// StorageResource is the audience of tokens accepted by Azure Storage.
	StorageResource = "https://storage.azure.com/"
)

// Token is an access token issued by the metadata service.
type Token struct {
	AccessToken string
	ExpiresOn   time.Time
}

// IMDSOptions locates the metadata service and the identity to request a token for.
type IMDSOptions struct {
	Endpoint   string
	APIVersion string
	// ClientID selects a user-assigned identity; empty means the system-assigned one.
	ClientID string
	// Client defaults to a retrying client with the go-utils retry policy.
	Client *retryablehttp.Client
}

// CredentialError is returned when a token cannot be acquired or parsed.
type CredentialError struct {
	StatusCode int
	Err        error
}

func (e *CredentialError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to acquire access token (HTTP %d): %s", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("failed to acquire access token: %s", e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

type imdsResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresOn   json.Number `json:"expires_on"`
}

// FetchIMDSToken requests a storage access token for the managed identity of the host.
func FetchIMDSToken(ctx context.Context, opts IMDSOptions) (Token, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, tokenURL(opts), nil)
	if err != nil {
		return Token{}, &CredentialError{Err: err}
	}
	req.Header.Set("Metadata", "true")

	client := opts.Client
	if client == nil {
		client = retryhttp.NewClient(log.NewLogger())
	}

	resp, err := client.Do(req)
	if err != nil {
		return Token{}, &CredentialError{Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Token{}, &CredentialError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", body)}
	}

	var response imdsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return Token{}, &CredentialError{StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid token response: %w", err)}
	}
	if response.AccessToken == "" {
		return Token{}, &CredentialError{StatusCode: resp.StatusCode, Err: fmt.Errorf("token response has no access_token")}
	}

	token := Token{AccessToken: response.AccessToken}
	if response.ExpiresOn != "" {
		seconds, err := strconv.ParseInt(string(response.ExpiresOn), 10, 64)
		if err != nil {
			return Token{}, &CredentialError{StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid expires_on %q: %w", response.ExpiresOn, err)}
		}
		token.ExpiresOn = time.Unix(seconds, 0)
	}

	return token, nil
}

func tokenURL(opts IMDSOptions) string {
	query := url.Values{}
	query.Set("api-version", opts.APIVersion)
	query.Set("resource", StorageResource)
	if opts.ClientID != "" {
		query.Set("client_id", opts.ClientID)
	}
	return opts.Endpoint + "?" + query.Encode()
}
