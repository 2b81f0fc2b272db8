package logs

import (
	"log/slog"
	"os"
	"path/filepath"
)

// DiscoverSessions scans the projects directory and returns session file
// paths keyed by project id (the encoded directory name). Projects without
// any session files are left out; unreadable project directories are skipped.
func DiscoverSessions(projectsDir string, logger *slog.Logger) map[string][]string {
	result := make(map[string][]string)

	entries, err := os.ReadDir(projectsDir)
	if err != nil {
		logger.Error("cannot scan projects directory", "dir", projectsDir, "error", err)
		return result
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		projectID := entry.Name()
		projectPath := filepath.Join(projectsDir, projectID)

		files, err := os.ReadDir(projectPath)
		if err != nil {
			continue
		}

		var sessions []string
		for _, f := range files {
			if f.Type().IsRegular() && IsValidSessionFile(f.Name()) {
				sessions = append(sessions, filepath.Join(projectPath, f.Name()))
			}
		}
		if len(sessions) > 0 {
			result[projectID] = sessions
		}
	}

	return result
}
