package ssoimport

import (
	"fmt"
	"os"
	"strings"
)

// MergeIntoFile añade al archivo de credenciales los tokens que aún no
// contiene y retorna cuántos se añadieron. Las líneas existentes, incluidos
// comentarios y líneas en blanco, se conservan tal cual.
func MergeIntoFile(path string, tokens []string) (int, error) {
	existing, err := readTokenSet(path)
	if err != nil {
		return 0, err
	}

	var fresh []string
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" || existing[token] {
			continue
		}
		existing[token] = true
		fresh = append(fresh, token)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return 0, fmt.Errorf("open credential file: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	if needsSeparator(path) {
		b.WriteString("\n")
	}
	for _, token := range fresh {
		b.WriteString(token)
		b.WriteString("\n")
	}
	if _, err := f.WriteString(b.String()); err != nil {
		return 0, fmt.Errorf("append credential file: %w", err)
	}
	return len(fresh), nil
}

// readTokenSet carga los tokens ya presentes en el archivo, ignorando
// comentarios y líneas en blanco igual que hace el pool al cargar
func readTokenSet(path string) (map[string]bool, error) {
	tokens := make(map[string]bool)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return tokens, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credential file: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		token := strings.TrimSpace(line)
		if token == "" || strings.HasPrefix(token, "#") {
			continue
		}
		tokens[token] = true
	}
	return tokens, nil
}

// needsSeparator indica si el archivo existe y no termina en salto de línea
func needsSeparator(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return false
	}
	return data[len(data)-1] != '\n'
}
