// Package analysis turns a plant-growing scenario into a prompt for the
// generative-AI provider and checks the provider's reply against the
// cultivation plan schema.
package analysis

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/agriplan/internal/apperr"
)

// Environment values accepted in Request.Environment.
const (
	EnvOutdoorSun   = "outdoor_sun"
	EnvOutdoorShade = "outdoor_shade"
	EnvGreenhouse   = "greenhouse"
	EnvIndoorRoom   = "indoor_room"
)

// Growing systems accepted in Request.System.
const (
	SystemSoil        = "soil"
	SystemPot         = "pot"
	SystemHydroponics = "hydroponics"
)

// Output languages.
const (
	LangThai    = "th"
	LangEnglish = "en"
	LangChinese = "zh"
)

// DefaultImageMIME is assumed for images sent as bare base64.
const DefaultImageMIME = "image/jpeg"

const (
	maxFieldLen  = 100
	maxPromptLen = 100_000
)

// Request is a scenario submitted by a client.  When Plant is empty and
// Prompt is set the request is in the legacy form, where the client built
// the prompt itself.
type Request struct {
	Plant       string `json:"plant"`
	Region      string `json:"region"`
	Country     string `json:"country"`
	Environment string `json:"environment"`
	System      string `json:"system"`
	Language    string `json:"language"`
	Image       string `json:"imageBase64"`

	Prompt string `json:"prompt"`
}

// PromptPayload is what gets sent to the provider.
type PromptPayload struct {
	Prompt   string
	Image    []byte
	MIMEType string
	Legacy   bool
}

// CacheKey identifies the payload for result caching.  Identical prompt
// text and image bytes give identical keys.
func (p PromptPayload) CacheKey() string {
	h := sha256.New()
	h.Write([]byte(p.Prompt))
	h.Write([]byte{0})
	h.Write([]byte(p.MIMEType))
	h.Write([]byte{0})
	h.Write(p.Image)
	return hex.EncodeToString(h.Sum(nil))
}

// BuildRequest validates req and expands the prompt template.  The output
// depends only on req.
func BuildRequest(req Request) (PromptPayload, error) {
	var payload PromptPayload
	img, mime, err := decodeImage(req.Image)
	if err != nil {
		return payload, err
	}
	payload.Image, payload.MIMEType = img, mime

	if strings.TrimSpace(req.Plant) == "" && strings.TrimSpace(req.Prompt) != "" {
		if utf8.RuneCountInString(req.Prompt) > maxPromptLen {
			return payload, fmt.Errorf("%w: prompt is too long", apperr.ErrInvalidInput)
		}
		payload.Prompt = req.Prompt
		payload.Legacy = true
		return payload, nil
	}

	data, err := normalize(req)
	if err != nil {
		return payload, err
	}
	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, data); err != nil {
		return payload, fmt.Errorf("render prompt: %w", err)
	}
	payload.Prompt = buf.String()
	return payload, nil
}

// LanguageLabel is the language name written into the prompt.
func LanguageLabel(code string) string {
	switch code {
	case LangThai:
		return "Thai (ภาษาไทย)"
	case LangChinese:
		return "Chinese"
	default:
		return "English"
	}
}

type promptData struct {
	Plant, Region, Country, Environment, System, Language string
}

func normalize(req Request) (promptData, error) {
	d := promptData{
		Plant:       strings.TrimSpace(req.Plant),
		Region:      strings.TrimSpace(req.Region),
		Country:     strings.TrimSpace(req.Country),
		Environment: strings.TrimSpace(req.Environment),
		System:      strings.TrimSpace(req.System),
	}
	for _, f := range [...]struct{ name, v string }{{"plant", d.Plant}, {"region", d.Region}, {"country", d.Country}} {
		name, v := f.name, f.v
		if v == "" {
			return d, fmt.Errorf("%w: %s is required", apperr.ErrInvalidInput, name)
		}
		if utf8.RuneCountInString(v) > maxFieldLen || strings.ContainsAny(v, "\r\n") {
			return d, fmt.Errorf("%w: %s must be a single line of at most %d characters", apperr.ErrInvalidInput, name, maxFieldLen)
		}
	}
	switch d.Environment {
	case EnvOutdoorSun, EnvOutdoorShade, EnvGreenhouse, EnvIndoorRoom:
	default:
		return d, fmt.Errorf("%w: unknown environment %q", apperr.ErrInvalidInput, d.Environment)
	}
	switch d.System {
	case SystemSoil, SystemPot, SystemHydroponics:
	default:
		return d, fmt.Errorf("%w: unknown system %q", apperr.ErrInvalidInput, d.System)
	}
	switch lang := strings.ToLower(strings.TrimSpace(req.Language)); lang {
	case "", LangEnglish:
		d.Language = LanguageLabel(LangEnglish)
	case LangThai, LangChinese:
		d.Language = LanguageLabel(lang)
	default:
		return d, fmt.Errorf("%w: unknown language %q", apperr.ErrInvalidInput, req.Language)
	}
	return d, nil
}

// decodeImage accepts bare base64 or a data URL such as
// "data:image/png;base64,iVBOR...".  An empty string means no image.
func decodeImage(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "", nil
	}
	mime := DefaultImageMIME
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, data, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return nil, "", fmt.Errorf("%w: image data URL must be base64 encoded", apperr.ErrInvalidInput)
		}
		if m := strings.TrimSuffix(meta, ";base64"); m != "" {
			mime = strings.ToLower(m)
		}
		s = data
	}
	if !strings.HasPrefix(mime, "image/") {
		return nil, "", fmt.Errorf("%w: unsupported image type %q", apperr.ErrInvalidInput, mime)
	}
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	img, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if img, err = base64.RawStdEncoding.DecodeString(s); err != nil {
			return nil, "", fmt.Errorf("%w: image is not valid base64", apperr.ErrInvalidInput)
		}
	}
	if len(img) == 0 {
		return nil, "", nil
	}
	return img, mime, nil
}
