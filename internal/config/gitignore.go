package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// gitignoreLine returns the ignore line for a corpus-relative directory.
func gitignoreLine(dir string) string {
	return "/" + strings.Trim(filepath.ToSlash(dir), "/") + "/"
}

// IgnoreInGit appends an ignore line for the corpus-relative directory dir
// to root/.gitignore, creating the file when needed. It reports whether the
// file changed; an existing line is left alone.
func IgnoreInGit(root, dir string) (bool, error) {
	gitignorePath := filepath.Join(root, ".gitignore")
	line := gitignoreLine(dir)

	content, err := os.ReadFile(gitignorePath)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("reading .gitignore: %w", err)
	}

	for _, l := range strings.Split(string(content), "\n") {
		l = strings.TrimSpace(l)
		if l == line || l == strings.TrimPrefix(line, "/") || l == strings.TrimSuffix(line, "/") {
			return false, nil
		}
	}

	// Ensure there's a newline before our addition.
	suffix := line + "\n"
	if len(content) > 0 && !strings.HasSuffix(string(content), "\n") {
		suffix = "\n" + suffix
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("opening .gitignore for append: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(suffix); err != nil {
		return false, fmt.Errorf("writing to .gitignore: %w", err)
	}
	return true, nil
}
