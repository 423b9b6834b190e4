package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// actorHeader mirrors the admin API's acting-identity header.
const actorHeader = "X-Warden-Handle"

// client is a thin wrapper over the admin API. Every request carries
// the acting handle; the server decides whether that handle may do the
// thing.
type client struct {
	server string
	as     string
}

func newClient(server, as string) (*client, error) {
	if server == "" {
		server = getEnv("WARDEN_SERVER", "http://localhost:8080")
	}
	if as == "" {
		as = os.Getenv("WARDEN_AS")
	}
	if as == "" {
		return nil, fmt.Errorf("acting handle is required (use -as or set WARDEN_AS)")
	}
	return &client{server: server, as: as}, nil
}

func (c *client) do(method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.server+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set(actorHeader, c.as)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, apiError(resp.StatusCode, data)
	}
	return data, nil
}

func (c *client) getJSON(path string, out interface{}) error {
	data, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// apiError surfaces the server's error message when the body carries
// the standard {"error": "..."} shape.
func apiError(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("server returned %d: %s", status, payload.Error)
	}
	return fmt.Errorf("server returned %d", status)
}

func unmarshalJSON(data []byte, out interface{}) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode server response: %w", err)
	}
	return nil
}

func unmarshalActor(data []byte, out *actorResult) error {
	return unmarshalJSON(data, out)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
