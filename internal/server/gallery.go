package server

import (
	"html/template"
	"log/slog"
	"net/http"
)

const galleryPageLimit = 50

// Galería mínima para inspeccionar lo generado sin herramientas externas
var galleryTmpl = template.Must(template.New("gallery").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="30">
<title>Imagine Gallery</title>
<style>
  body { background: #111; color: #ddd; font-family: sans-serif; margin: 2rem; }
  h1 { font-size: 1.2rem; font-weight: normal; }
  .grid { display: grid; grid-template-columns: repeat(auto-fill, minmax(220px, 1fr)); gap: 12px; }
  .card { background: #1c1c1c; border-radius: 6px; overflow: hidden; }
  .card img { width: 100%; display: block; }
  .card .meta { padding: 6px 8px; font-size: 0.72rem; color: #888; }
  .empty { color: #666; margin-top: 3rem; text-align: center; }
</style>
</head>
<body>
<h1>Imagine Gallery &mdash; {{len .Images}} images</h1>
{{if .Images}}
<div class="grid">
{{range .Images}}
  <div class="card">
    <a href="{{.URL}}"><img src="{{.URL}}" loading="lazy" alt="{{.Filename}}"></a>
    <div class="meta">{{.Filename}} &middot; {{.ModTime.Format "2006-01-02 15:04"}}</div>
  </div>
{{end}}
</div>
{{else}}
<p class="empty">No images yet</p>
{{end}}
</body>
</html>
`))

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	images, err := s.media.List(galleryPageLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := galleryTmpl.Execute(w, map[string]any{"Images": images}); err != nil {
		slog.Warn("server: gallery render failed", "error", err)
	}
}
