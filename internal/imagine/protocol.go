package imagine

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/elsanchez/imagine-gateway/internal/domain"
)

// DefaultWSURL es el endpoint del protocolo de generación
const DefaultWSURL = "wss://grok.com/ws/imagine/listen"

// El upstream valida el origen y el agente del handshake
const (
	wsOrigin = "https://grok.com"
	chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// requestMessage es el único mensaje saliente: un evento de creación de
// item con el prompt y las propiedades de generación
type requestMessage struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Item      requestItem `json:"item"`
}

type requestItem struct {
	Type    string           `json:"type"`
	Content []requestContent `json:"content"`
}

type requestContent struct {
	RequestID  string            `json:"requestId"`
	Text       string            `json:"text"`
	Type       string            `json:"type"`
	Properties requestProperties `json:"properties"`
}

type requestProperties struct {
	SectionCount  int    `json:"section_count"`
	IsKidsMode    bool   `json:"is_kids_mode"`
	EnableNSFW    bool   `json:"enable_nsfw"`
	SkipUpsampler bool   `json:"skip_upsampler"`
	IsInitial     bool   `json:"is_initial"`
	AspectRatio   string `json:"aspect_ratio"`
}

func newRequestMessage(requestID, prompt, aspectRatio string, enableNSFW bool, now time.Time) requestMessage {
	return requestMessage{
		Type:      "conversation.item.create",
		Timestamp: now.UnixMilli(),
		Item: requestItem{
			Type: "message",
			Content: []requestContent{{
				RequestID: requestID,
				Text:      prompt,
				Type:      "input_text",
				Properties: requestProperties{
					SectionCount:  0,
					IsKidsMode:    false,
					EnableNSFW:    enableNSFW,
					SkipUpsampler: false,
					IsInitial:     false,
					AspectRatio:   aspectRatio,
				},
			}},
		},
	}
}

// Tipos de frame entrante
const (
	frameTypeImage = "image"
	frameTypeError = "error"
)

// serverFrame es un frame del upstream; Type discrimina qué campos llegan
type serverFrame struct {
	Type string `json:"type"`

	// type == "image"
	Blob string `json:"blob"`
	URL  string `json:"url"`

	// type == "error"
	ErrCode string `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

// wsHeaders construye las cabeceras de autenticación del handshake. La
// credencial viaja duplicada en las cookies sso y sso-rw.
func wsHeaders(token string) http.Header {
	h := http.Header{}
	h.Set("Cookie", "sso="+token+"; sso-rw="+token)
	h.Set("Origin", wsOrigin)
	h.Set("User-Agent", chromeUA)
	h.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	return h
}

// La referencia embebida de cada frame lleva el identificador de la imagen
var imageIDPattern = regexp.MustCompile(`/images/([a-f0-9-]+)\.(png|jpg)`)

// extractImageID saca el identificador de la URL de un frame; cadena vacía
// si la URL no tiene la forma esperada
func extractImageID(url string) string {
	m := imageIDPattern.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	return m[1]
}

// Umbrales de clasificación de etapa, sobre la longitud del payload
// codificado tal como llega en el frame
const (
	finalSizeThreshold  = 100_000
	mediumSizeThreshold = 30_000
)

// classifyStage determina la etapa de un frame: la versión final llega como
// .jpg y pesa más de 100KB; los refinados intermedios superan los 30KB; el
// resto son previews.
func classifyStage(url string, blobSize int) domain.Stage {
	if strings.HasSuffix(url, ".jpg") && blobSize > finalSizeThreshold {
		return domain.StageFinal
	}
	if blobSize > mediumSizeThreshold {
		return domain.StageMedium
	}
	return domain.StagePreview
}
