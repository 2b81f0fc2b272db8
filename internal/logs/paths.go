package logs

import (
	"os"
	"path/filepath"
	"strings"
)

// DecodeProjectPath turns a project directory name back into the absolute
// filesystem path it encodes. Claude Code builds these names by replacing
// every "/" and "." in the path with "-", so a dash may stand for a
// separator, a dot, or a literal dash in the original name:
//
//	-Users-anna-work          -> /Users/anna/work
//	-Users-anna-work-cc-log   -> /Users/anna/work/cc-log
//	-Users-anna--claude       -> /Users/anna/.claude
//
// The ambiguity is resolved by probing the filesystem left to right,
// preferring the longest component that exists. When the resolved parent
// exists but no child matches, all remaining parts are consumed as one
// hyphenated leaf name (the project directory itself may have been deleted).
func DecodeProjectPath(dirName string) string {
	if dirName == "" || dirName == "-" {
		return "/"
	}

	stripped := strings.TrimLeft(dirName, "-")
	if stripped == "" {
		return "/"
	}

	// Consecutive dashes leave empty parts, e.g. "--claude" -> ["", "claude"].
	parts := strings.Split(stripped, "-")

	path := "/"
	i := 0
	for i < len(parts) {
		if parts[i] == "" {
			// A doubled dash marks a dot-prefixed (hidden) component.
			i++
			if i < len(parts) {
				found := false
				for j := len(parts); j > i; j-- {
					candidate := "." + strings.Join(parts[i:j], "-")
					testPath := filepath.Join(path, candidate)
					if pathExists(testPath) {
						path = testPath
						i = j
						found = true
						break
					}
				}
				if !found {
					path = filepath.Join(path, "."+strings.Join(parts[i:], "-"))
					i = len(parts)
				}
			}
			continue
		}

		found := false
		for j := len(parts); j > i; j-- {
			candidate := strings.Join(parts[i:j], "-")
			testPath := filepath.Join(path, candidate)
			if pathExists(testPath) {
				path = testPath
				i = j
				found = true
				break
			}
		}
		if !found {
			if isDir(path) {
				// Parent exists but no child matches: the rest is a single
				// hyphenated name.
				path = filepath.Join(path, strings.Join(parts[i:], "-"))
				i = len(parts)
			} else {
				path = filepath.Join(path, parts[i])
				i++
			}
		}
	}

	return path
}

func EncodeProjectPath(path string) string {
	return strings.ReplaceAll(path, "/", "-")
}

// ShortName extracts the last meaningful component from a decoded path.
func ShortName(decodedPath string) string {
	trimmed := strings.TrimRight(decodedPath, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

// IsValidSessionFile reports whether a file name looks like a session log.
// Dotfiles are excluded, which also covers macOS "._" resource forks.
func IsValidSessionFile(name string) bool {
	return strings.HasSuffix(name, ".jsonl") && !strings.HasPrefix(name, ".")
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
