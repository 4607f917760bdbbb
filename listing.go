package liveserver

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

type listingEntry struct {
	Name string
	Href string
	Dir  bool
	Size string
	Age  string
}

type listingPage struct {
	Path    string
	Parent  bool
	Entries []listingEntry
}

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Index of {{ .Path }}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
td { padding: 0.2em 1.5em 0.2em 0; }
td.size, td.age { color: #666; }
</style>
</head>
<body>
<h1>Index of {{ .Path }}</h1>
<table>
{{- if .Parent }}
<tr><td><a href="../">../</a></td><td></td><td></td></tr>
{{- end }}
{{- range .Entries }}
<tr><td><a href="{{ .Href }}">{{ .Name }}{{ if .Dir }}/{{ end }}</a></td><td class="size">{{ .Size }}</td><td class="age">{{ .Age }}</td></tr>
{{- end }}
</table>
</body>
</html>
`))

// serveListing renders the directory, directories first, hiding dotfiles
func (f *FileServer) serveListing(w http.ResponseWriter, r *http.Request, dir string) error {
	des, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	page := listingPage{
		Path:   r.URL.Path,
		Parent: r.URL.Path != "/",
	}
	for _, de := range des {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed while listing
			continue
		}
		entry := listingEntry{
			Name: name,
			Href: (&url.URL{Path: name}).String(),
			Dir:  info.IsDir(),
			Age:  humanize.Time(info.ModTime()),
		}
		if entry.Dir {
			entry.Href += "/"
		} else {
			entry.Size = humanize.Bytes(uint64(info.Size()))
		}
		page.Entries = append(page.Entries, entry)
	}
	sort.SliceStable(page.Entries, func(i, j int) bool {
		a, b := page.Entries[i], page.Entries[j]
		if a.Dir != b.Dir {
			return a.Dir
		}
		return a.Name < b.Name
	})
	var body bytes.Buffer
	if err := listingTemplate.Execute(&body, page); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", fmt.Sprint(body.Len()))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return nil
	}
	w.Write(body.Bytes())
	return nil
}
