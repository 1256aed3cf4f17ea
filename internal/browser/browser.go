package browser

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// command builds the OS-specific launcher; swapped out in tests.
var command = func(goos, target string) *exec.Cmd {
	switch goos {
	case "darwin":
		return exec.Command("open", target)
	case "windows":
		// rundll32 avoids cmd /c start shell interpretation
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		return exec.Command("xdg-open", target)
	}
}

// Open launches the system browser for an article image URL. Only absolute
// http(s) URLs are accepted.
func Open(rawURL string) error {
	if err := check(rawURL); err != nil {
		return err
	}
	return command(runtime.GOOS, rawURL).Start()
}

func check(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("no image for this article")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("refusing to open URL with scheme %q (only http/https allowed)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("refusing to open URL without host: %q", rawURL)
	}
	return nil
}
