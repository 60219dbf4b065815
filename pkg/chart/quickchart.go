package chart

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pario-ai/tokenash/pkg/logger"
)

// DefaultURL is the public QuickChart endpoint.
const DefaultURL = "https://quickchart.io/chart"

const tickCallback = "function(value) { return value >= 1000 ? (value/1000) + 'K' : value; }"

// Document is the Chart.js (v2) configuration QuickChart renders.
type Document struct {
	Type    Kind    `json:"type"`
	Data    Data    `json:"data"`
	Options Options `json:"options"`
}

// Data holds the labels and datasets of a Document.
type Data struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Dataset is one plotted series.
type Dataset struct {
	Label           string   `json:"label"`
	Data            []int64  `json:"data"`
	BackgroundColor string   `json:"backgroundColor"`
	BorderColor     string   `json:"borderColor"`
	BorderWidth     int      `json:"borderWidth"`
	Fill            *bool    `json:"fill,omitempty"`
	Tension         *float64 `json:"tension,omitempty"`
}

// Options are the Document's chart options.
type Options struct {
	Title   Title   `json:"title"`
	Scales  Scales  `json:"scales"`
	Legend  Legend  `json:"legend"`
	Plugins Plugins `json:"plugins"`
}

// Title is the chart heading.
type Title struct {
	Display  bool   `json:"display"`
	Text     string `json:"text"`
	FontSize int    `json:"fontSize"`
}

// Scales holds the x and y axes.
type Scales struct {
	XAxes []Axis `json:"xAxes"`
	YAxes []Axis `json:"yAxes"`
}

// Axis configures one chart axis.
type Axis struct {
	Stacked    bool        `json:"stacked"`
	Ticks      *Ticks      `json:"ticks,omitempty"`
	ScaleLabel *ScaleLabel `json:"scaleLabel,omitempty"`
}

// Ticks carries the tick label callback source.
type Ticks struct {
	Callback string `json:"callback"`
}

// ScaleLabel is an axis caption.
type ScaleLabel struct {
	Display     bool   `json:"display"`
	LabelString string `json:"labelString"`
}

// Legend controls the dataset legend.
type Legend struct {
	Display  bool   `json:"display"`
	Position string `json:"position"`
}

// Plugins configures Chart.js plugins.
type Plugins struct {
	DataLabels DataLabels `json:"datalabels"`
}

// DataLabels toggles per-point value labels.
type DataLabels struct {
	Display bool `json:"display"`
}

// NewDocument converts spec into a QuickChart document.
func NewDocument(spec *Spec) Document {
	var datasets []Dataset
	if spec.Stacked() {
		for _, s := range spec.Series {
			p := paletteFor(s.Provider)
			datasets = append(datasets, Dataset{
				Label:           displayName(s.Provider),
				Data:            s.Values,
				BackgroundColor: p.Background,
				BorderColor:     p.Border,
				BorderWidth:     1,
			})
		}
	} else {
		fill, tension := true, 0.3
		datasets = []Dataset{{
			Label:           "Total Tokens",
			Data:            spec.Totals,
			BackgroundColor: totalPalette.Background,
			BorderColor:     totalPalette.Border,
			BorderWidth:     2,
			Fill:            &fill,
			Tension:         &tension,
		}}
	}

	return Document{
		Type: spec.Kind,
		Data: Data{Labels: spec.Labels, Datasets: datasets},
		Options: Options{
			Title: Title{Display: true, Text: spec.Title, FontSize: 16},
			Scales: Scales{
				XAxes: []Axis{{Stacked: true}},
				YAxes: []Axis{{
					Stacked:    true,
					Ticks:      &Ticks{Callback: tickCallback},
					ScaleLabel: &ScaleLabel{Display: true, LabelString: "Tokens"},
				}},
			},
			Legend:  Legend{Display: len(datasets) > 1, Position: "bottom"},
			Plugins: Plugins{DataLabels: DataLabels{Display: false}},
		},
	}
}

// displayName capitalizes a provider id: "openai" -> "Openai".
func displayName(provider string) string {
	r, size := utf8.DecodeRuneInString(provider)
	if r == utf8.RuneError {
		return provider
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(provider[size:])
}

// ImageCache stores rendered images keyed by document hash.
type ImageCache interface {
	Get(key string) ([]byte, bool)
	Put(key string, image []byte) error
}

// Renderer turns a Spec into a QuickChart URL or a downloaded PNG.
type Renderer struct {
	BaseURL string
	Width   int
	Height  int
	Client  *http.Client
	Cache   ImageCache
}

// NewRenderer returns a Renderer with a client bounded by timeout.
func NewRenderer(baseURL string, width, height int, timeout time.Duration) *Renderer {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Renderer{
		BaseURL: baseURL,
		Width:   width,
		Height:  height,
		Client:  &http.Client{Timeout: timeout},
	}
}

// Encode returns the compact JSON of spec's document.
func Encode(spec *Spec) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(NewDocument(spec)); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// URL returns the QuickChart URL rendering spec.
func (r *Renderer) URL(spec *Spec) (string, error) {
	doc, err := Encode(spec)
	if err != nil {
		return "", err
	}
	return r.urlFor(doc), nil
}

func (r *Renderer) urlFor(doc []byte) string {
	q := url.Values{}
	q.Set("c", string(doc))
	q.Set("width", strconv.Itoa(r.Width))
	q.Set("height", strconv.Itoa(r.Height))
	return r.BaseURL + "?" + q.Encode()
}

// CacheKey identifies the image rendered for spec at the renderer's size.
// It depends on the chart document only, not on the rendering endpoint.
func (r *Renderer) CacheKey(spec *Spec) (string, error) {
	doc, err := Encode(spec)
	if err != nil {
		return "", err
	}
	return r.cacheKey(doc), nil
}

// Download fetches the PNG for spec and writes it to path. It is best
// effort: any failure is logged and reported as ok=false.
func (r *Renderer) Download(ctx context.Context, spec *Spec, path string) (string, bool) {
	log := logger.FromContext(ctx).With(zap.String("path", path))
	if spec == nil {
		return "", false
	}

	doc, err := Encode(spec)
	if err != nil {
		log.Warn("encode chart failed", zap.Error(err))
		return "", false
	}
	chartURL := r.urlFor(doc)

	key := r.cacheKey(doc)
	image, hit := r.cached(key)
	if !hit {
		image, err = r.fetch(ctx, chartURL)
		if err != nil {
			log.Warn("chart render failed", zap.Error(err))
			return "", false
		}
		if r.Cache != nil {
			if err := r.Cache.Put(key, image); err != nil {
				log.Warn("cache chart image failed", zap.Error(err))
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Warn("create chart dir failed", zap.Error(err))
		return "", false
	}
	if err := os.WriteFile(path, image, 0o644); err != nil {
		log.Warn("write chart image failed", zap.Error(err))
		return "", false
	}
	log.Debug("chart image written", zap.Bool("cache_hit", hit), zap.Int("bytes", len(image)))
	return path, true
}

func (r *Renderer) cached(key string) ([]byte, bool) {
	if r.Cache == nil {
		return nil, false
	}
	return r.Cache.Get(key)
}

func (r *Renderer) fetch(ctx context.Context, chartURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, chartURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quickchart returned %d", resp.StatusCode)
	}
	return body, nil
}

func (r *Renderer) cacheKey(doc []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%dx%d\n", r.Width, r.Height)
	h.Write(doc)
	return hex.EncodeToString(h.Sum(nil))
}
