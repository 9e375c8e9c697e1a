package storage

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ImageInfo describe una imagen persistida para los listados de
// administración y la galería
type ImageInfo struct {
	Filename string    `json:"filename"`
	URL      string    `json:"url"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mtime"`
}

// MediaStore guarda las imágenes generadas como archivos bajo un directorio
// y construye sus referencias públicas. La extensión refleja la etapa: .jpg
// para finales, .png para intermedias.
type MediaStore struct {
	dir     string
	baseURL string
}

// NewMediaStore crea el directorio si no existe
func NewMediaStore(dir, baseURL string) (*MediaStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create images directory: %w", err)
	}
	return &MediaStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir retorna el directorio de imágenes, para el file server del gateway
func (s *MediaStore) Dir() string {
	return s.dir
}

// Save decodifica el payload base64 y lo escribe identificado por el id de
// la imagen. Retorna la URL pública del archivo.
func (s *MediaStore) Save(id, b64 string, final bool) (string, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("decode image payload: %w", err)
	}

	ext := "png"
	if final {
		ext = "jpg"
	}
	filename := id + "." + ext
	if err := os.WriteFile(filepath.Join(s.dir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("write image file: %w", err)
	}
	return s.URL(filename), nil
}

// URL construye la referencia pública de un archivo ya persistido
func (s *MediaStore) URL(filename string) string {
	return s.baseURL + "/images/" + filename
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// List retorna las imágenes persistidas de más nueva a más vieja, hasta
// limit entradas; limit <= 0 lista todas
func (s *MediaStore) List(limit int) ([]ImageInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read images directory: %w", err)
	}

	var images []ImageInfo
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		images = append(images, ImageInfo{
			Filename: e.Name(),
			URL:      s.URL(e.Name()),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
	}

	sort.Slice(images, func(i, j int) bool {
		return images[i].ModTime.After(images[j].ModTime)
	})
	if limit > 0 && len(images) > limit {
		images = images[:limit]
	}
	return images, nil
}

// Clear borra todos los archivos del directorio y retorna cuántos eliminó
func (s *MediaStore) Clear() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read images directory: %w", err)
	}

	deleted := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return deleted, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		deleted++
	}
	return deleted, nil
}
