package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// jwksKeySet Keycloak 公钥集合。遇到未知 kid 时整体重新拉取，
// 轮换掉的旧 key 随之失效；重新拉取受限流约束，伪造的 kid 不会放大成对 Keycloak 的请求。
type jwksKeySet struct {
	url    string
	client *http.Client

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	refresh *rate.Limiter
}

type jsonWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func newJWKSKeySet(url string, minRefresh time.Duration) *jwksKeySet {
	return &jwksKeySet{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		refresh: rate.NewLimiter(rate.Every(minRefresh), 1),
	}
}

func (s *jwksKeySet) lookup(kid string) (*rsa.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[kid]
	return k, ok
}

// key 返回 kid 对应的公钥，必要时重新拉取
func (s *jwksKeySet) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if k, ok := s.lookup(kid); ok {
		return k, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[kid]; ok {
		return k, nil
	}
	// 首次加载不受限流
	if s.keys != nil && !s.refresh.Allow() {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	keys, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.keys = keys
	if k, ok := keys[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("unknown signing key %q", kid)
}

func (s *jwksKeySet) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, jwk := range doc.Keys {
		// Keycloak 同时发布加密用的 key
		if jwk.Kty != "RSA" || jwk.Use == "enc" || jwk.Kid == "" {
			continue
		}
		pub, err := jwk.rsaPublicKey()
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", jwk.Kid, err)
		}
		keys[jwk.Kid] = pub
	}
	return keys, nil
}

func (k jsonWebKey) rsaPublicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("bad modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("bad exponent: %w", err)
	}
	if len(e) == 0 || len(e) > 4 {
		return nil, errors.New("exponent out of range")
	}
	exp := 0
	for _, b := range e {
		exp = exp<<8 | int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: exp}, nil
}
