package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"orchflow.org/access/internal/auth"
)

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) do(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s (%s)", method, path, resp.Status, bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func main() {
	base := os.Getenv("ACCESS_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	c := &client{base: base, http: &http.Client{Timeout: 5 * time.Second}}
	if auth.SupportsTokens() {
		token, err := auth.GenerateToken("smoke-admin", []string{"admin"}, 10*time.Minute)
		if err != nil {
			log.Fatalf("mint admin token: %v", err)
		}
		c.token = token
	}

	userID := fmt.Sprintf("smoke-user-%d", rand.Int63())
	org := "org-smoke"

	if err := c.do(http.MethodPost, "/v1/roles/viewer/permissions", map[string]any{"permission": "llm:use"}, nil); err != nil {
		log.Fatalf("grant llm:use to viewer: %v", err)
	}
	if err := c.do(http.MethodPost, "/v1/users/"+userID+"/assignments", map[string]any{"role": "viewer", "scope": org}, nil); err != nil {
		log.Fatalf("assign viewer in %s: %v", org, err)
	}
	if err := c.do(http.MethodPost, "/v1/users/"+userID+"/assignments", map[string]any{"role": "viewer", "scope": "*"}, nil); err != nil {
		log.Fatalf("assign global viewer: %v", err)
	}

	var resolved struct {
		Permissions []string `json:"permissions"`
	}
	path := "/v1/organizations/" + org + "/users/" + userID + "/permissions"
	if err := c.do(http.MethodGet, path, nil, &resolved); err != nil {
		log.Fatalf("resolve permissions: %v", err)
	}
	if !contains(resolved.Permissions, "llm:use") {
		log.Fatalf("resolved set is missing llm:use: %v", resolved.Permissions)
	}

	// The global binding shadows the org-scoped one, so compaction must
	// remove a row without changing what the user can do.
	var compacted struct {
		Removed int64 `json:"removed"`
	}
	if err := c.do(http.MethodPost, "/v1/roles/viewer/compact", nil, &compacted); err != nil {
		log.Fatalf("compact viewer assignments: %v", err)
	}
	if compacted.Removed < 1 {
		log.Fatalf("expected compaction to remove the shadowed binding, removed %d", compacted.Removed)
	}

	var after struct {
		Permissions []string `json:"permissions"`
	}
	if err := c.do(http.MethodGet, path, nil, &after); err != nil {
		log.Fatalf("resolve after compact: %v", err)
	}
	if !equalSets(resolved.Permissions, after.Permissions) {
		log.Fatalf("compaction changed resolution: before=%v after=%v", resolved.Permissions, after.Permissions)
	}

	if err := c.do(http.MethodDelete, "/v1/users/"+userID+"/assignments", map[string]any{"role": "viewer", "scope": "*"}, nil); err != nil {
		log.Fatalf("revoke global viewer: %v", err)
	}

	fmt.Printf("✅ access-api smoke test passed: user=%s org=%s\n", userID, org)
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, item := range a {
		seen[item] = true
	}
	for _, item := range b {
		if !seen[item] {
			return false
		}
	}
	return true
}
