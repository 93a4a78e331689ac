// Package http adapts an HTTP endpoint call into engine.Provider, using
// hashicorp/go-retryablehttp for transport-level retries and gjson/sjson to
// extract and patch JSON fields without a fixed response schema.
package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/dshills/checkrun/engine"
)

// Provider invokes an HTTP endpoint. The check's Config payload supplies
// "url" (string, required), "method" (string, default GET), "headers"
// (map[string]any, optional), "body" (string or map[string]any, optional),
// "extract" (string, optional gjson path applied to the response body;
// the matched value becomes the result Output, otherwise the whole decoded
// body is Output), and "auth" (map, optional: either {"bearer_token": ...}
// or OAuth2 client credentials {"token_url", "client_id", "client_secret",
// "scopes"}).
type Provider struct {
	client *retryablehttp.Client
}

// New returns an http Provider with retryablehttp's default backoff policy
// capped at maxRetries retries after the first attempt.
func New(maxRetries int) *Provider {
	client := retryablehttp.NewClient()
	client.RetryMax = maxRetries
	client.Logger = nil // silence retryablehttp's default stderr logging
	return &Provider{client: client}
}

// Invoke implements engine.Provider.
func (p *Provider) Invoke(cctx *engine.CheckContext) (engine.CheckResult, error) {
	url, _ := cctx.Config["url"].(string)
	if url == "" {
		return engine.CheckResult{Error: &engine.ErrorInfo{
			Kind: engine.ErrorKindProvider, Message: "http: config must set \"url\"",
		}}, nil
	}
	method, _ := cctx.Config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	bodyBytes, err := requestBody(cctx.Config["body"])
	if err != nil {
		return engine.CheckResult{Error: &engine.ErrorInfo{Kind: engine.ErrorKindProvider, Message: err.Error()}}, nil
	}

	req, err := retryablehttp.NewRequestWithContext(cctx.Context, method, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return engine.CheckResult{Error: &engine.ErrorInfo{Kind: engine.ErrorKindProvider, Message: err.Error()}}, nil
	}
	if headers, ok := cctx.Config["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}
	if len(bodyBytes) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth, ok := cctx.Config["auth"].(map[string]any); ok {
		token, err := bearerToken(cctx, auth)
		if err != nil {
			return engine.CheckResult{Error: &engine.ErrorInfo{Kind: engine.ErrorKindProvider, Message: err.Error()}}, nil
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return engine.CheckResult{Error: &engine.ErrorInfo{Kind: engine.ErrorKindProvider, Message: err.Error()}}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return engine.CheckResult{Error: &engine.ErrorInfo{Kind: engine.ErrorKindProvider, Message: err.Error()}}, nil
	}

	if resp.StatusCode >= 400 {
		return engine.CheckResult{
			Content: string(raw),
			Error: &engine.ErrorInfo{
				Kind:    engine.ErrorKindProvider,
				Message: fmt.Sprintf("http: status %d", resp.StatusCode),
			},
		}, nil
	}

	result := engine.CheckResult{Content: string(raw)}
	if path, _ := cctx.Config["extract"].(string); path != "" {
		result.Output = gjson.GetBytes(raw, path).Value()
	} else {
		result.Output = gjson.ParseBytes(raw).Value()
	}
	return result, nil
}

// bearerToken resolves the auth block to a bearer token: a static
// "bearer_token", or an OAuth2 client-credentials grant against "token_url".
// Tokens are fetched per invocation; the token endpoint's own caching (and
// the check's snapshot isolation) make that acceptable for check workloads.
func bearerToken(cctx *engine.CheckContext, auth map[string]any) (string, error) {
	if token, _ := auth["bearer_token"].(string); token != "" {
		return token, nil
	}

	tokenURL, _ := auth["token_url"].(string)
	clientID, _ := auth["client_id"].(string)
	clientSecret, _ := auth["client_secret"].(string)
	if tokenURL == "" || clientID == "" {
		return "", fmt.Errorf("http: auth must set \"bearer_token\" or \"token_url\"+\"client_id\"")
	}

	cc := clientcredentials.Config{
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}
	if scopes, ok := auth["scopes"].([]any); ok {
		for _, s := range scopes {
			if str, ok := s.(string); ok {
				cc.Scopes = append(cc.Scopes, str)
			}
		}
	}

	token, err := cc.Token(cctx.Context)
	if err != nil {
		return "", fmt.Errorf("http: oauth2 token: %w", err)
	}
	return token.AccessToken, nil
}

func requestBody(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(b), nil
	case map[string]any:
		payload := []byte("{}")
		for k, val := range b {
			var err error
			payload, err = sjson.SetBytes(payload, k, val)
			if err != nil {
				return nil, fmt.Errorf("http: encode body field %q: %w", k, err)
			}
		}
		return payload, nil
	default:
		return nil, fmt.Errorf("http: unsupported body type %T", v)
	}
}

// DefaultTimeout is an http-specific default timeout value. No code in this
// module reads it: the Gateway applies the check's own timeout or the
// engine-wide default.
const DefaultTimeout = 30 * time.Second
