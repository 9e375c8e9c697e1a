// Package ssoimport extrae tokens sso de los navegadores instalados y los
// incorpora al archivo de credenciales del pool.
package ssoimport

import (
	"context"
	"fmt"
	"strings"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/chrome"
	_ "github.com/browserutils/kooky/browser/chromium"
	_ "github.com/browserutils/kooky/browser/edge"
	_ "github.com/browserutils/kooky/browser/firefox"
	_ "github.com/browserutils/kooky/browser/opera"
)

const (
	// DefaultDomain es el dominio del servicio upstream
	DefaultDomain = "grok.com"
	// cookieName es la cookie de sesión que alimenta al pool
	cookieName = "sso"
)

// SupportedBrowsers lista los navegadores que kooky puede leer con los
// drivers registrados arriba
func SupportedBrowsers() []string {
	return []string{"chrome", "chromium", "firefox", "edge", "opera"}
}

// Options filtra la extracción
type Options struct {
	// Browser restringe a un navegador concreto; vacío = todos
	Browser string
	// Domain del que leer cookies; vacío usa DefaultDomain
	Domain string
}

// Extract lee las cookies sso de los navegadores instalados y retorna los
// tokens encontrados, deduplicados y en orden de descubrimiento
func Extract(ctx context.Context, opts Options) ([]string, error) {
	domain := opts.Domain
	if domain == "" {
		domain = DefaultDomain
	}
	browser := strings.ToLower(opts.Browser)

	cookies, err := kooky.ReadCookies(ctx,
		kooky.DomainHasSuffix(domain),
		kooky.Name(cookieName),
	)
	if err != nil {
		return nil, fmt.Errorf("read browser cookies: %w", err)
	}

	seen := make(map[string]bool)
	var tokens []string
	for _, cookie := range cookies {
		if browser != "" && cookie.Browser != nil {
			name := strings.ToLower(cookie.Browser.Browser())
			if !strings.Contains(name, browser) {
				continue
			}
		}
		token := strings.TrimSpace(cookie.Value)
		if token == "" || seen[token] {
			continue
		}
		seen[token] = true
		tokens = append(tokens, token)
	}

	if len(tokens) == 0 {
		return nil, fmt.Errorf("no %q cookies found for domain %q", cookieName, domain)
	}
	return tokens, nil
}
