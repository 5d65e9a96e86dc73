package host

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/drblury/codeshot/internal/runtime/ids"
)

// Clipboard puts exported images on the system clipboard.
type Clipboard interface {
	CopyImage(ctx context.Context, data []byte, ext, mimeType string) error
	CopyText(ctx context.Context, text string) error
}

// runCommand is replaced in tests.
var runCommand = func(ctx context.Context, stdin []byte, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(out))
	}
	return nil
}

// SystemClipboard shells out to the platform clipboard tool: PowerShell on
// Windows, osascript and pbcopy on macOS, xclip elsewhere.
type SystemClipboard struct {
	GOOS    string
	TempDir string
}

func NewSystemClipboard() SystemClipboard {
	return SystemClipboard{GOOS: runtime.GOOS, TempDir: os.TempDir()}
}

func (c SystemClipboard) CopyImage(ctx context.Context, data []byte, ext, mimeType string) error {
	tmp := filepath.Join(c.TempDir, fmt.Sprintf("codeshot-%s.%s", ids.New(), ext))
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("host: write %s: %w", tmp, err)
	}
	defer os.Remove(tmp)

	switch c.GOOS {
	case "windows":
		script := fmt.Sprintf("Add-Type -AssemblyName System.Windows.Forms; Add-Type -AssemblyName System.Drawing; "+
			"[System.Windows.Forms.Clipboard]::SetImage([System.Drawing.Image]::FromFile('%s'))", tmp)
		return runCommand(ctx, nil, "powershell", "-NoProfile", "-STA", "-Command", script)
	case "darwin":
		class := "«class PNGf»"
		if ext == "jpg" {
			class = "JPEG picture"
		}
		return runCommand(ctx, nil, "osascript", "-e",
			fmt.Sprintf(`set the clipboard to (read (POSIX file %q) as %s)`, tmp, class))
	default:
		return runCommand(ctx, nil, "xclip", "-selection", "clipboard", "-t", mimeType, "-i", tmp)
	}
}

func (c SystemClipboard) CopyText(ctx context.Context, text string) error {
	switch c.GOOS {
	case "windows":
		return runCommand(ctx, []byte(text), "powershell", "-NoProfile", "-Command", "$input | Set-Clipboard")
	case "darwin":
		return runCommand(ctx, []byte(text), "pbcopy")
	default:
		return runCommand(ctx, []byte(text), "xclip", "-selection", "clipboard", "-t", "text/plain")
	}
}
