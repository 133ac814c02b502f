package httpapi

import (
	"net/http"
	"path/filepath"
	"strings"
)

// handleWidget serves static assets from deps.WidgetDir, rejecting any
// request whose realpath escapes the realpath of the widget root (covers
// both ../ traversal and a symlink planted inside the directory).
func (s *Server) handleWidget(w http.ResponseWriter, r *http.Request) {
	if s.deps.WidgetDir == "" {
		http.NotFound(w, r)
		return
	}

	rootReal, err := filepath.EvalSymlinks(s.deps.WidgetDir)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	rel := strings.TrimPrefix(r.URL.Path, "/widget/")
	requested := filepath.Join(s.deps.WidgetDir, rel)
	fileReal, err := filepath.EvalSymlinks(requested)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if fileReal != rootReal && !strings.HasPrefix(fileReal, rootReal+string(filepath.Separator)) {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, fileReal)
}
