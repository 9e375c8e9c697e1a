package imagine

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Endpoint y cuerpo fijo de la verificación de edad. La fecha es la que el
// frontend del upstream envía para una cuenta adulta.
const (
	ageVerifyURL  = "https://grok.com/rest/auth/set-birth-date"
	ageVerifyBody = `{"birthDate":"2001-01-01T16:00:00.000Z"}`
)

// ageVerifyFunc intenta la verificación de edad de una credencial y reporta
// si tuvo éxito. Siempre best-effort.
type ageVerifyFunc func(ctx context.Context, token string) bool

// newAgeVerifier construye el verificador. Sin cf_clearance configurada no
// hay nada que intentar: el upstream rechaza la llamada sin esa cookie.
func newAgeVerifier(proxyURL, cfClearance string) ageVerifyFunc {
	if cfClearance == "" {
		return func(context.Context, string) bool {
			slog.Warn("imagine: CF_CLEARANCE not configured, skipping age verification")
			return false
		}
	}

	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	client := &http.Client{Transport: transport, Timeout: 30 * time.Second}

	return func(ctx context.Context, token string) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ageVerifyURL, strings.NewReader(ageVerifyBody))
		if err != nil {
			slog.Error("imagine: build age verification request failed", "error", err)
			return false
		}
		req.Header.Set("Cookie", "sso="+token+"; sso-rw="+token+"; cf_clearance="+cfClearance)
		req.Header.Set("User-Agent", chromeUA)
		req.Header.Set("Origin", wsOrigin)
		req.Header.Set("Referer", wsOrigin+"/")
		req.Header.Set("Accept", "*/*")
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			slog.Warn("imagine: age verification request failed", "error", err)
			return false
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			slog.Warn("imagine: age verification rejected", "status", resp.StatusCode)
			return false
		}
		slog.Info("imagine: age verification succeeded")
		return true
	}
}
