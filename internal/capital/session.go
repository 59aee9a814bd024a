package capital

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrLoginFailed indicates the session handshake was rejected.
	ErrLoginFailed = errors.New("capital: login failed")

	// ErrNoSession indicates an operation needed session tokens before login.
	ErrNoSession = errors.New("capital: no active session")
)

// Sessions last 24h server-side; renew well before that.
const (
	sessionLifetime     = 23 * time.Hour
	sessionExpiryBuffer = 5 * time.Minute
)

// Credentials is a snapshot of session tokens for outbound requests and the
// streaming connection.
type Credentials struct {
	APIKey        string
	CST           string
	SecurityToken string
}

type encryptionKeyResponse struct {
	EncryptionKey string `json:"encryptionKey"`
	Timestamp     int64  `json:"timeStamp"`
}

// Login performs the full session handshake: fetch the server's encryption
// key, encrypt the password, create the session, and store the returned
// CST and security tokens.
func (c *Client) Login(ctx context.Context) error {
	key, err := c.fetchEncryptionKey(ctx)
	if err != nil {
		return fmt.Errorf("fetch encryption key: %w", err)
	}

	encrypted, err := encryptPassword(key.EncryptionKey, c.password, key.Timestamp)
	if err != nil {
		return fmt.Errorf("encrypt password: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"identifier":        c.identifier,
		"password":          encrypted,
		"encryptedPassword": true,
	})
	if err != nil {
		return fmt.Errorf("marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/session", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create session request: %w", err)
	}
	req.Header.Set("X-CAP-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", ErrLoginFailed, resp.StatusCode, respBody)
	}

	cst := resp.Header.Get("CST")
	securityToken := resp.Header.Get("X-SECURITY-TOKEN")
	if cst == "" || securityToken == "" {
		return fmt.Errorf("%w: session tokens missing from response", ErrLoginFailed)
	}

	c.sessionMu.Lock()
	c.cst = cst
	c.securityToken = securityToken
	c.sessionExpiry = time.Now().UTC().Add(sessionLifetime)
	c.sessionMu.Unlock()

	c.logger.Info("logged in", "identifier", c.identifier)
	return nil
}

// fetchEncryptionKey retrieves the RSA public key used to encrypt the
// password for the session call. Only the API key header is required.
func (c *Client) fetchEncryptionKey(ctx context.Context) (*encryptionKeyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/session/encryptionKey", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-CAP-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: encryption key status %d: %s", ErrLoginFailed, resp.StatusCode, body)
	}

	var key encryptionKeyResponse
	if err := json.Unmarshal(body, &key); err != nil {
		return nil, fmt.Errorf("unmarshal encryption key: %w", err)
	}
	return &key, nil
}

// encryptPassword encrypts "password|timestamp" with the server-provided
// RSA public key using PKCS#1 v1.5, base64 at both ends as the API expects.
func encryptPassword(encryptionKey, password string, timestamp int64) (string, error) {
	der, err := base64.StdEncoding.DecodeString(encryptionKey)
	if err != nil {
		return "", fmt.Errorf("decode key: %w", err)
	}

	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return "", fmt.Errorf("parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return "", errors.New("public key is not RSA")
	}

	message := []byte(base64.StdEncoding.EncodeToString([]byte(password + "|" + strconv.FormatInt(timestamp, 10))))
	encrypted, err := rsa.EncryptPKCS1v15(rand.Reader, rsaPub, message)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}

	return base64.StdEncoding.EncodeToString(encrypted), nil
}

// sessionValid reports whether the current tokens can still be used,
// applying the expiry buffer.
func (c *Client) sessionValid() bool {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()

	if c.cst == "" || c.securityToken == "" {
		return false
	}
	if c.sessionExpiry.IsZero() {
		return true
	}
	return time.Now().UTC().Before(c.sessionExpiry.Add(-sessionExpiryBuffer))
}

// ensureSession renews the session if the tokens are stale. Concurrent
// callers collapse into a single login; all block until it completes.
func (c *Client) ensureSession(ctx context.Context) error {
	if c.sessionValid() {
		return nil
	}

	_, err, _ := c.renew.Do("session", func() (any, error) {
		if c.sessionValid() {
			return nil, nil
		}
		c.logger.Info("renewing session")
		return nil, c.Login(ctx)
	})
	return err
}

// SessionCredentials returns current session tokens, renewing first if
// needed. The streaming session uses this for connect and subscribe.
func (c *Client) SessionCredentials(ctx context.Context) (Credentials, error) {
	if err := c.ensureSession(ctx); err != nil {
		return Credentials{}, err
	}

	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	if c.cst == "" || c.securityToken == "" {
		return Credentials{}, ErrNoSession
	}
	return Credentials{
		APIKey:        c.apiKey,
		CST:           c.cst,
		SecurityToken: c.securityToken,
	}, nil
}

// InvalidateSession forces the next credential use to renew. Called when
// the server reports an invalid/expired session token.
func (c *Client) InvalidateSession() {
	c.sessionMu.Lock()
	c.sessionExpiry = time.Unix(0, 0)
	c.sessionMu.Unlock()
}
