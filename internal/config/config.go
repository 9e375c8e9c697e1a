package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/elsanchez/imagine-gateway/internal/domain"
)

// UpstreamWSURL es el endpoint fijo del servicio de generación. No es
// configurable: el protocolo sólo existe en esa ruta.
const UpstreamWSURL = "wss://grok.com/ws/imagine/listen"

// Config agrupa toda la configuración del gateway.
// Prioridad: variable de entorno > archivo .env > valor por defecto.
type Config struct {
	// Servidor
	Host  string
	Port  int
	Debug bool

	// Clave para proteger la API del gateway; vacía = sin autenticación
	APIKey string

	// Proxy saliente opcional (http/https/socks5)
	ProxyURL string

	// Cookie cf_clearance para la verificación de edad
	CFClearance string

	// Generación
	DefaultImageCount  int
	DefaultAspectRatio string
	GenerationTimeout  time.Duration

	// Pool de credenciales
	SSOFile          string
	RotationStrategy domain.RotationStrategy
	DailyLimit       int

	// Redis como store compartido del pool
	RedisEnabled bool
	RedisURL     string

	// Almacenamiento
	DataDir   string
	ImagesDir string
	BaseURL   string
}

// Load lee la configuración del entorno, aplicando antes el archivo .env si
// existe (ENV_FILE_PATH permite cambiar su ubicación)
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE_PATH", ".env")
	if _, err := os.Stat(envFile); err == nil {
		// godotenv no pisa variables ya presentes en el entorno
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	dataDir := getEnv("DATA_DIR", "data")

	cfg := &Config{
		Host:               getEnv("HOST", "0.0.0.0"),
		Port:               getEnvInt("PORT", 9563),
		Debug:              getEnvBool("DEBUG", false),
		APIKey:             getEnv("API_KEY", ""),
		ProxyURL:           firstNonEmpty(os.Getenv("PROXY_URL"), os.Getenv("HTTP_PROXY"), os.Getenv("HTTPS_PROXY")),
		CFClearance:        getEnv("CF_CLEARANCE", ""),
		DefaultImageCount:  getEnvInt("DEFAULT_IMAGE_COUNT", 4),
		DefaultAspectRatio: getEnv("DEFAULT_ASPECT_RATIO", "2:3"),
		GenerationTimeout:  time.Duration(getEnvInt("GENERATION_TIMEOUT", 120)) * time.Second,
		SSOFile:            getEnv("SSO_FILE", "key.txt"),
		DailyLimit:         getEnvInt("SSO_DAILY_LIMIT", 10),
		RedisEnabled:       getEnvBool("REDIS_ENABLED", false),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DataDir:            dataDir,
		ImagesDir:          getEnv("IMAGES_DIR", filepath.Join(dataDir, "images")),
		BaseURL:            getEnv("BASE_URL", ""),
	}

	strategy, ok := domain.ParseStrategy(getEnv("SSO_ROTATION_STRATEGY", string(domain.StrategyHybrid)))
	if !ok {
		return nil, fmt.Errorf("invalid SSO_ROTATION_STRATEGY: %q", os.Getenv("SSO_ROTATION_STRATEGY"))
	}
	cfg.RotationStrategy = strategy

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate comprueba rangos y valores obligatorios
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.DefaultImageCount < 1 || c.DefaultImageCount > 4 {
		return fmt.Errorf("DEFAULT_IMAGE_COUNT out of range [1,4]: %d", c.DefaultImageCount)
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be positive")
	}
	if c.DailyLimit < 1 {
		return fmt.Errorf("SSO_DAILY_LIMIT must be positive: %d", c.DailyLimit)
	}
	if c.SSOFile == "" {
		return fmt.Errorf("SSO_FILE must not be empty")
	}
	return nil
}

// PublicBaseURL retorna la base de las URLs de imágenes servidas. Si BASE_URL
// no está configurada se construye desde HOST:PORT, sustituyendo 0.0.0.0 por
// 127.0.0.1 para que la referencia sea alcanzable.
func (c *Config) PublicBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	host := c.Host
	if host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Port)
}

// HistoryDBPath retorna la ruta de la base de historial dentro de DataDir
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "imagine-gateway.db")
}

// Addr retorna la dirección de escucha del servidor HTTP
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
