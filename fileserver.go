package liveserver

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
)

// FileServer serves files from a root directory. Unlike http.FileServer it
// refuses paths that climb out of the root rather than cleaning them away.
type FileServer struct {
	root string
	log  *slog.Logger
	// Listing renders directories without an index.html
	Listing bool
	// Fallback is served in place of missing files when set
	Fallback string
}

func NewFileServer(log *slog.Logger, root string) *FileServer {
	return &FileServer{root: root, log: log, Listing: true}
}

// Resolve maps a URL path to a path inside the root
func (f *FileServer) Resolve(urlPath string) (string, error) {
	if strings.IndexByte(urlPath, 0) >= 0 {
		return "", fmt.Errorf("%w: %q", ErrForbiddenPath, urlPath)
	}
	segments := []string{f.root}
	for _, segment := range strings.FieldsFunc(urlPath, isSlash) {
		switch segment {
		case ".":
			continue
		case "..":
			if len(segments) == 1 {
				return "", fmt.Errorf("%w: %q", ErrForbiddenPath, urlPath)
			}
			segments = segments[:len(segments)-1]
		default:
			segments = append(segments, segment)
		}
	}
	name := filepath.Join(segments...)
	rel, err := filepath.Rel(f.root, name)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrForbiddenPath, urlPath)
	}
	return name, nil
}

func isSlash(r rune) bool {
	return r == '/' || r == '\\'
}

func (f *FileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if err := f.serve(w, r); err != nil {
		f.fail(w, r, err)
	}
}

func (f *FileServer) serve(w http.ResponseWriter, r *http.Request) error {
	name, err := f.Resolve(r.URL.Path)
	if err != nil {
		return err
	}
	stat, err := os.Stat(name)
	if err != nil {
		if !isNotExist(err) {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		if f.Fallback != "" {
			return f.serveFile(w, r, f.Fallback)
		}
		return fmt.Errorf("%w: %s", ErrNotFound, r.URL.Path)
	}
	if !stat.IsDir() {
		return f.serveFile(w, r, name)
	}
	if !strings.HasSuffix(r.URL.Path, "/") {
		target := "./" + path.Base(r.URL.Path) + "/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		w.Header().Set("Location", target)
		w.WriteHeader(http.StatusMovedPermanently)
		return nil
	}
	index := filepath.Join(name, "index.html")
	if stat, err := os.Stat(index); err == nil && !stat.IsDir() {
		return f.serveFile(w, r, index)
	}
	if !f.Listing {
		return fmt.Errorf("%w: %s", ErrNotFound, r.URL.Path)
	}
	return f.serveListing(w, r, name)
}

func (f *FileServer) serveFile(w http.ResponseWriter, r *http.Request, name string) error {
	file, err := os.Open(name)
	if err != nil {
		if isNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, r.URL.Path)
		}
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	defer file.Close()
	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if stat.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotFound, r.URL.Path)
	}
	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		var buf [512]byte
		n, err := io.ReadFull(file, buf[:])
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		ctype = http.DetectContentType(buf[:n])
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, stat.Name(), stat.ModTime(), file)
	return nil
}

func (f *FileServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	if status == http.StatusInternalServerError {
		f.log.Warn("liveserver: unable to serve file", "path", r.URL.Path, "error", err)
	} else {
		f.log.Debug("liveserver: refused request", "path", r.URL.Path, "status", status, "error", err)
	}
	http.Error(w, http.StatusText(status), status)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
