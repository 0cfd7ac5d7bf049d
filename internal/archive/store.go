package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gosimple/slug"
)

// Document kinds, guessed from the attachment filename
const (
	KindCV          = "CV"
	KindCoverLetter = "CoverLetter"
)

// Entry is a document kept in the archive
type Entry struct {
	Sender string
	Kind   string
	Path   string
	Size   int64
}

// Store keeps copies of downloaded PDF attachments on disk.
// Files are named "<sender>_CV.pdf", "<sender>_CoverLetter.pdf" or "<sender>_<original>.pdf".
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the archive directory
func (s *Store) Dir() string {
	return s.dir
}

// Save writes an attachment and returns its path. Existing files are never overwritten;
// a numeric suffix is added instead.
func (s *Store) Save(sender, filename string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	base := FileName(sender, filename)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for i := 1; ; i++ {
		name := base
		if i > 1 {
			name = stem + "-" + strconv.Itoa(i) + ext
		}
		path := filepath.Join(s.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create file: %w", err)
		}

		_, werr := f.Write(data)
		cerr := f.Close()
		if werr != nil {
			return "", fmt.Errorf("failed to write file: %w", werr)
		}
		if cerr != nil {
			return "", fmt.Errorf("failed to write file: %w", cerr)
		}
		return path, nil
	}
}

// FileName builds the archive name for an attachment
func FileName(sender, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".pdf"
	}
	baseName := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	// the sender must not contain the separator
	who := strings.ReplaceAll(slug.Make(sender), "_", "-")
	if who == "" {
		who = "unknown"
	}

	lower := strings.ToLower(baseName)
	switch {
	case strings.Contains(lower, "cv") || strings.Contains(lower, "resume"):
		return fmt.Sprintf("%s_%s%s", who, KindCV, ext)
	case strings.Contains(lower, "cover") || strings.Contains(lower, "letter"):
		return fmt.Sprintf("%s_%s%s", who, KindCoverLetter, ext)
	}

	other := slug.Make(baseName)
	if other == "" {
		other = "attachment"
	}
	return fmt.Sprintf("%s_%s%s", who, other, ext)
}

// List returns the archived PDFs sorted by file name
func (s *Store) List() ([]Entry, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	entries := make([]Entry, 0, len(files))
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		filename := file.Name()
		ext := filepath.Ext(filename)
		if !strings.EqualFold(ext, ".pdf") {
			continue
		}

		// Convention: "sender_Kind.pdf"
		parts := strings.SplitN(strings.TrimSuffix(filename, ext), "_", 2)
		if len(parts) < 2 {
			continue
		}

		info, err := file.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", filename, err)
		}

		entries = append(entries, Entry{
			Sender: parts[0],
			Kind:   parts[1],
			Path:   filepath.Join(s.dir, filename),
			Size:   info.Size(),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Clear removes the archived PDFs and returns how many were deleted.
// Files that do not follow the naming convention are left alone.
func (s *Store) Clear() (int, error) {
	entries, err := s.List()
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err := os.Remove(e.Path); err != nil {
			return i, fmt.Errorf("failed to remove %s: %w", e.Path, err)
		}
	}
	return len(entries), nil
}
