// Package renamer composes destination filenames and moves ingested files
// into actress-named library folders, grounded on the reference renamer.
package renamer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// maxFilenameLen is a conservative cap shared by common filesystems.
const maxFilenameLen = 200

// invalidCharsRx matches characters reserved on common filesystems.
var invalidCharsRx = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

var whitespaceRx = regexp.MustCompile(`\s+`)

// moveError wraps a move failure, carrying the original source path so the
// caller can still reference the queue row by its pre-move location.
type moveError struct {
	SourcePath string
	Err        error
}

func (e *moveError) Error() string {
	return fmt.Sprintf("move %s: %v", e.SourcePath, e.Err)
}

func (e *moveError) Unwrap() error { return e.Err }

// BuildFilename composes "{Actress} - [{Subtitle}] {CODE} {Title}{ext}",
// stripping a duplicated movie code from the title, title-casing it,
// sanitizing illegal characters, and truncating the title if the result
// would exceed the filesystem's conservative length limit.
func BuildFilename(actress, subtitle, movieCode, title, ext string) string {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	title = stripCode(title, movieCode)
	title = titleCase(title)

	prefix := fmt.Sprintf("%s - [%s] %s ", actress, subtitle, movieCode)
	maxTitleLen := maxFilenameLen - len(prefix) - len(ext)

	var truncated string
	switch {
	case maxTitleLen < 10:
		truncated = ""
	case len(title) > maxTitleLen:
		truncated = strings.TrimRight(title[:maxTitleLen], " ")
	default:
		truncated = title
	}

	raw := strings.TrimSpace(prefix + truncated + ext)
	return sanitize(raw)
}

func stripCode(title, movieCode string) string {
	if movieCode == "" {
		return title
	}
	rx := regexp.MustCompile("(?i)" + regexp.QuoteMeta(movieCode))
	return rx.ReplaceAllString(title, "")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) == 0 {
			continue
		}
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r[0]) + strings.ToLower(string(r[1:]))
	}
	return strings.Join(words, " ")
}

func sanitize(name string) string {
	s := invalidCharsRx.ReplaceAllString(name, " ")
	s = whitespaceRx.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// FindActressDir enumerates root once and returns the name of the first
// existing entry matching actress under case-insensitive comparison. If
// none matches, it returns the actress name unchanged for a new directory.
func FindActressDir(root, actress string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return actress, nil
		}
		return "", fmt.Errorf("read destination root: %w", err)
	}

	target := strings.ToLower(actress)
	for _, e := range entries {
		if e.IsDir() && strings.ToLower(e.Name()) == target {
			return e.Name(), nil
		}
	}
	return actress, nil
}

// Move moves sourcePath into destRoot/<actress folder>/<filename>, creating
// the actress directory if needed and appending " (1)", " (2)", … to avoid
// clobbering an existing file. It renames atomically within a filesystem
// and falls back to copy-then-fsync-then-unlink across filesystems.
func Move(sourcePath, destRoot, actress, filename string) (string, error) {
	folder, err := FindActressDir(destRoot, actress)
	if err != nil {
		return "", &moveError{SourcePath: sourcePath, Err: err}
	}

	targetDir := filepath.Join(destRoot, folder)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", &moveError{SourcePath: sourcePath, Err: fmt.Errorf("create actress dir: %w", err)}
	}

	targetPath := uniquePath(filepath.Join(targetDir, filename))

	if err := renameOrCopy(sourcePath, targetPath); err != nil {
		return "", &moveError{SourcePath: sourcePath, Err: err}
	}
	return targetPath, nil
}

func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

func renameOrCopy(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return fmt.Errorf("rename: %w", err)
	}
	return copyThenUnlink(src, dst)
}

// copyThenUnlink copies across a device boundary. It writes to a
// uuid-suffixed temp name in the destination directory first and renames
// into place once the copy is fsynced, so a crash mid-copy (or a retried
// attempt racing a stale leftover from a prior crash) never leaves a
// half-written file sitting at the final destination path.
func copyThenUnlink(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	tmp := dst + ".tmp-" + uuid.NewString()
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync destination: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close destination: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp into place: %w", err)
	}

	dir, err := os.Open(filepath.Dir(dst))
	if err == nil {
		dir.Sync()
		dir.Close()
	}

	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}
