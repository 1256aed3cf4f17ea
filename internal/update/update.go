// Package update checks whether a newer artsearch release exists.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ReleasesURL is the GitHub endpoint for the latest release.
var ReleasesURL = "https://api.github.com/repos/njaaron/articlesearch/releases/latest"

// Result holds the outcome of a version check.
type Result struct {
	LatestVersion string
	Newer         bool
}

type ghRelease struct {
	TagName string `json:"tag_name"`
}

// Check queries the releases endpoint and compares the tag with currentVersion.
func Check(ctx context.Context, client *http.Client, currentVersion string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ReleasesURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checking releases: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("checking releases: HTTP %d", resp.StatusCode)
	}

	var release ghRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("decoding release: %w", err)
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	current := strings.TrimPrefix(currentVersion, "v")
	if latest == "" {
		return nil, fmt.Errorf("release has no tag")
	}

	return &Result{LatestVersion: latest, Newer: latest != current}, nil
}
