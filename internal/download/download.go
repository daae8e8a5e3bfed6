package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// DownloadFile fetches url into targetPath and returns the written path.
// The file is written to a temporary sibling and renamed once complete.
func DownloadFile(ctx context.Context, url, targetPath string) (string, error) {
	return DownloadFileWithClient(ctx, http.DefaultClient, url, targetPath)
}

// DownloadFileWithClient is DownloadFile with a caller-supplied HTTP client
func DownloadFileWithClient(ctx context.Context, client *http.Client, url, targetPath string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download %s: status %s", url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(targetPath), filepath.Base(targetPath)+".part-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", targetPath, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	if err := os.Rename(tmp.Name(), targetPath); err != nil {
		return "", fmt.Errorf("failed to move download into place: %w", err)
	}
	return targetPath, nil
}
