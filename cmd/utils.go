package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/apkdock/apkdock/internal/config"
)

// readActivePort reads the port from the port file
func readActivePort() int {
	data, err := os.ReadFile(filepath.Join(config.GetAppDir(), "port"))
	if err != nil {
		return 0
	}
	var port int
	fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &port)
	return port
}

// postToServer sends a JSON request to a running daemon and decodes the reply
func postToServer(port int, path string, body any) (map[string]string, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d%s", port, path)
	resp, err := http.Post(serverURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server error: %s - %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var respData map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return respData, nil
}

// requireServer returns the daemon port or an error when none is running
func requireServer() (int, error) {
	port := readActivePort()
	if port == 0 {
		return 0, fmt.Errorf("apkdock is not running; start it with 'apkdock'")
	}
	return port, nil
}
