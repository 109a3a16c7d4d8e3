package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/apkdock/apkdock/internal/download"
	"github.com/apkdock/apkdock/internal/engine/types"
	"github.com/apkdock/apkdock/internal/installer"
	"github.com/apkdock/apkdock/internal/utils"
)

// DownloadView is the JSON form of one persisted download
type DownloadView struct {
	PackageName   string         `json:"package_name"`
	Version       string         `json:"version"`
	RepositoryID  int64          `json:"repository_id"`
	CacheFileName string         `json:"cache_file_name"`
	Changed       time.Time      `json:"changed"`
	State         types.StateDTO `json:"state"`
}

// UninstallRequest asks the daemon to remove a package
type UninstallRequest struct {
	PackageName string `json:"package_name"`
}

func newDownloadView(d types.Downloaded) DownloadView {
	return DownloadView{
		PackageName:   d.PackageName,
		Version:       d.Version,
		RepositoryID:  d.RepositoryID,
		CacheFileName: d.CacheFileName,
		Changed:       d.Changed,
		State:         types.NewStateDTO(d.State),
	}
}

// startHTTPServer serves the control endpoints on ln until ctx is done
func startHTTPServer(ctx context.Context, ln net.Listener, d *daemon) {
	server := &http.Server{Handler: newServeMux(d)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		utils.Debug("HTTP server error: %v", err)
	}
}

func newServeMux(d *daemon) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
		handleReport(w, r, d.bridge)
	})
	mux.HandleFunc("/downloads", func(w http.ResponseWriter, r *http.Request) {
		handleDownloads(w, r, d)
	})
	mux.HandleFunc("/uninstall", func(w http.ResponseWriter, r *http.Request) {
		handleUninstall(w, r, d)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// requireJSON rejects bodies that are not application/json. Browsers cannot
// send that type cross-site without a preflight.
func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
		return false
	}
	return true
}

func handleReport(w http.ResponseWriter, r *http.Request, bridge *download.Bridge) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireJSON(w, r) {
		return
	}
	defer r.Body.Close()

	var report download.Report
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	forwarded, err := bridge.Submit(report)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status := "ignored"
	if forwarded {
		status = "accepted"
	}
	utils.Debug("Report %s for task %s: %s", report.State.Kind, report.TaskID, status)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": status, "task_id": report.TaskID})
}

func handleDownloads(w http.ResponseWriter, r *http.Request, d *daemon) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	downloads, err := d.store.ListDownloads(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]DownloadView, 0, len(downloads))
	for _, dl := range downloads {
		views = append(views, newDownloadView(dl))
	}
	writeJSON(w, http.StatusOK, views)
}

func handleUninstall(w http.ResponseWriter, r *http.Request, d *daemon) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireJSON(w, r) {
		return
	}
	defer r.Body.Close()

	var req UninstallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.PackageName == "" {
		http.Error(w, "package_name is required", http.StatusBadRequest)
		return
	}
	if err := installer.ValidatePackageName(req.PackageName); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := d.installer.Uninstall(req.PackageName); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "package_name": req.PackageName})
}
