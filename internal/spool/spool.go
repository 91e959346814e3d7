// Package spool reads the smstools spool directory tree: folder listing
// with search/sort/pagination, traversal-safe single-file reads, and
// best-effort header/body enrichment of .sms files.
package spool

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sonpython/sms-api/internal/protocol"
)

// Folder is one of the fixed smstools spool subdirectories.
type Folder string

// The closed folder set, in the order watch sessions scan them.
const (
	FolderChecked  Folder = "checked"
	FolderFailed   Folder = "failed"
	FolderIncoming Folder = "incoming"
	FolderOutgoing Folder = "outgoing"
	FolderSent     Folder = "sent"
)

// Folders lists all spool folders in their fixed scan order.
var Folders = []Folder{FolderChecked, FolderFailed, FolderIncoming, FolderOutgoing, FolderSent}

var (
	// ErrInvalidFolder is returned for folder names outside the closed set.
	ErrInvalidFolder = errors.New("invalid folder")
	// ErrFileNotFound is returned when a spool file does not exist.
	ErrFileNotFound = errors.New("file not found")
)

// ParseFolder validates a folder name against the closed set. It never
// touches the filesystem.
func ParseFolder(name string) (Folder, error) {
	for _, f := range Folders {
		if string(f) == name {
			return f, nil
		}
	}
	return "", ErrInvalidFolder
}

// Pagination bounds.
const (
	DefaultPerPage = 50
	MaxPerPage     = 200
)

// ListOptions control folder listing.
type ListOptions struct {
	Search    string // case-insensitive substring match on filename
	SortBy    string // "name" sorts by filename; anything else by mtime
	SortOrder string // "asc" sorts ascending; empty means "desc"
	Page      int    // clamped to >= 1
	PerPage   int    // clamped to [1, MaxPerPage]; 0 means DefaultPerPage
}

// Reader lists and reads files inside a spool root directory.
type Reader struct {
	baseDir string
}

// NewReader creates a Reader over the given spool root.
func NewReader(baseDir string) *Reader {
	return &Reader{baseDir: baseDir}
}

// BaseDir returns the spool root directory.
func (r *Reader) BaseDir() string {
	return r.baseDir
}

// Dir returns the directory backing a folder.
func (r *Reader) Dir(folder Folder) string {
	return filepath.Join(r.baseDir, string(folder))
}

// List enumerates the regular files in a folder, excluding dotfiles,
// applying search, sort, and pagination. A missing folder directory yields
// an empty result.
func (r *Reader) List(folder Folder, opts ListOptions) (*protocol.ListResponse, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	perPage := opts.PerPage
	if perPage == 0 {
		perPage = DefaultPerPage
	}
	if perPage < 1 {
		perPage = 1
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	resp := &protocol.ListResponse{
		Files:   []protocol.FileRecord{},
		Page:    page,
		PerPage: perPage,
	}

	entries, err := os.ReadDir(r.Dir(folder))
	if err != nil {
		if os.IsNotExist(err) {
			return resp, nil
		}
		return nil, err
	}

	search := strings.ToLower(opts.Search)
	var records []protocol.FileRecord
	for _, entry := range entries {
		name := entry.Name()
		if !entryIsRegular(r.Dir(folder), entry) || strings.HasPrefix(name, ".") {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(name), search) {
			continue
		}
		rec, err := r.Record(folder, name)
		if err != nil {
			// File disappeared between ReadDir and stat.
			continue
		}
		records = append(records, *rec)
	}

	order := opts.SortOrder
	if order == "" {
		order = "desc"
	}
	desc := order == "desc"
	if opts.SortBy == "name" {
		sort.SliceStable(records, func(i, j int) bool {
			a, b := strings.ToLower(records[i].Filename), strings.ToLower(records[j].Filename)
			if desc {
				return a > b
			}
			return a < b
		})
	} else {
		sort.SliceStable(records, func(i, j int) bool {
			if desc {
				return records[i].Modified > records[j].Modified
			}
			return records[i].Modified < records[j].Modified
		})
	}

	resp.Total = len(records)
	resp.Pages = (resp.Total + perPage - 1) / perPage

	start := (page - 1) * perPage
	end := start + perPage
	if start > len(records) {
		start = len(records)
	}
	if end > len(records) {
		end = len(records)
	}
	resp.Files = records[start:end]
	return resp, nil
}

// Read returns the record for a single spool file including its full
// content. The filename is reduced to its base component before joining,
// which is the only path-traversal defense: anything pointing outside the
// folder resolves to a nonexistent name and yields ErrFileNotFound.
func (r *Reader) Read(folder Folder, filename string) (*protocol.FileRecord, error) {
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) || name == ".." {
		return nil, ErrFileNotFound
	}

	path := filepath.Join(r.Dir(folder), name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, ErrFileNotFound
	}

	rec := recordFromInfo(name, info)
	rec.Folder = string(folder)

	// Read failures degrade to empty content rather than failing the request.
	if raw, err := os.ReadFile(path); err == nil {
		rec.Content = strings.ToValidUTF8(string(raw), "�")
		rec.Phone, rec.Preview = parseMessage(rec.Content)
	}
	return rec, nil
}

// Record builds the metadata record for one file in a folder, with phone
// and preview enrichment but without full content.
func (r *Reader) Record(folder Folder, name string) (*protocol.FileRecord, error) {
	path := filepath.Join(r.Dir(folder), name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, ErrFileNotFound
	}

	rec := recordFromInfo(name, info)
	if raw, err := os.ReadFile(path); err == nil {
		rec.Phone, rec.Preview = parseMessage(strings.ToValidUTF8(string(raw), "�"))
	}
	return rec, nil
}

// Filenames returns the set of regular-file names currently in a folder.
// An unreadable or missing directory is an error, not an empty set, so
// callers can tell "folder vanished" apart from "folder emptied".
func (r *Reader) Filenames(folder Folder) (map[string]struct{}, error) {
	dir := r.Dir(folder)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entryIsRegular(dir, entry) {
			names[entry.Name()] = struct{}{}
		}
	}
	return names, nil
}

// entryIsRegular reports whether an entry is a regular file, following
// symlinks the way stat does.
func entryIsRegular(dir string, entry os.DirEntry) bool {
	if entry.Type().IsRegular() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, entry.Name()))
	return err == nil && info.Mode().IsRegular()
}

func recordFromInfo(name string, info os.FileInfo) *protocol.FileRecord {
	mod := info.ModTime()
	return &protocol.FileRecord{
		Filename:    name,
		Size:        info.Size(),
		Modified:    float64(mod.UnixNano()) / float64(time.Second),
		ModifiedISO: mod.UTC().Format(time.RFC3339),
	}
}

// previewLimit caps the preview at 120 characters.
const previewLimit = 120

// parseMessage extracts the phone and body preview from an smstools file.
// The header block is the lines before the first blank line; a From: or
// To: header supplies the phone (last one wins). Everything after the
// blank line is the body, trimmed and truncated for the preview.
func parseMessage(text string) (phone, preview string) {
	lines := strings.Split(text, "\n")
	body := ""
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			body = strings.Join(lines[i+1:], "\n")
			break
		}
		if v, ok := strings.CutPrefix(trimmed, "From:"); ok {
			phone = strings.TrimSpace(v)
		} else if v, ok := strings.CutPrefix(trimmed, "To:"); ok {
			phone = strings.TrimSpace(v)
		}
	}

	body = strings.TrimSpace(body)
	if runes := []rune(body); len(runes) > previewLimit {
		body = string(runes[:previewLimit])
	}
	return phone, body
}
