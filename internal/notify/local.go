package notify

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/aviary-ai/aviary/internal/report"
)

// Local renders reports on the machine the gateway runs on: to stdout, to
// export files, or into the default browser.
type Local struct {
	exportDir string
	out       io.Writer
	logger    *slog.Logger

	// open launches the platform opener; replaceable in tests.
	open func(path string) error
}

func NewLocal(exportDir string, logger *slog.Logger) *Local {
	return &Local{
		exportDir: exportDir,
		out:       os.Stdout,
		logger:    logger,
		open:      openPath,
	}
}

// View writes the rendered report to stdout.
func (l *Local) View(snap report.Snapshot) error {
	_, err := io.WriteString(l.out, FormatReport(snap))
	return err
}

// Export writes the full snapshot as json under the export dir and returns
// the file path.
func (l *Local) Export(snap report.Snapshot) (string, error) {
	if err := os.MkdirAll(l.exportDir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	path := filepath.Join(l.exportDir, snap.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	l.logger.Info("report exported", "run", snap.ID, "path", path)
	return path, nil
}

// OpenBrowser writes an html rendering next to the json export and opens it
// with the platform opener.
func (l *Local) OpenBrowser(snap report.Snapshot) error {
	if err := os.MkdirAll(l.exportDir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	page := fmt.Sprintf("<!doctype html><html><head><meta charset=\"utf-8\"><title>Report %s</title></head><body><pre>%s</pre></body></html>",
		html.EscapeString(snap.ID), html.EscapeString(FormatReport(snap)))

	path := filepath.Join(l.exportDir, snap.ID+".html")
	if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
		return fmt.Errorf("write report page: %w", err)
	}
	return l.open(path)
}

func openPath(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}
