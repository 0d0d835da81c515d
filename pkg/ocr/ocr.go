package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// Token is a word recognized by the OCR engine and the top-left corner of its
// bounding box.
type Token struct {
	X    int
	Y    int
	Text string
}

// Extractor finds balance candidates in screenshots with Tesseract.
type Extractor struct {
	languages []string
	scale     float64
	parser    *Parser
	log       *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLanguages sets the Tesseract languages, "eng" by default.
func WithLanguages(langs ...string) Option {
	return func(e *Extractor) {
		if len(langs) > 0 {
			e.languages = langs
		}
	}
}

// WithScale sets the upscale factor applied before binarization (2 by default).
func WithScale(f float64) Option {
	return func(e *Extractor) {
		if f > 0 {
			e.scale = f
		}
	}
}

// WithSymbols overrides currency symbol to ISO code mappings.
func WithSymbols(symbols map[string]string) Option {
	return func(e *Extractor) { e.parser = NewParser(symbols) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.log = l
		}
	}
}

// NewExtractor builds an Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		languages: []string{"eng"},
		scale:     2,
		parser:    NewParser(nil),
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract decodes the screenshot, preprocesses it and returns every word
// that parses as money, in OCR order. A screenshot without any monetary
// token yields an empty slice and a nil error.
func (e *Extractor) Extract(ctx context.Context, data []byte) ([]Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	bin := Preprocess(img, e.scale)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, bin, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode preprocessed image: %w", err)
	}
	tokens, err := e.recognize(buf.Bytes())
	if err != nil {
		return nil, err
	}
	balances := e.parser.Balances(tokens)
	e.log.Debug("ocr extraction",
		slog.Int("tokens", len(tokens)),
		slog.Int("balances", len(balances)),
		slog.String("text", snippet(joinTokens(tokens), 160)))
	return balances, nil
}

// recognize runs Tesseract in sparse text mode and returns word boxes.
func (e *Extractor) recognize(png []byte) ([]Token, error) {
	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(e.languages...); err != nil {
		return nil, fmt.Errorf("%w: set language: %v", ErrEngine, err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		return nil, fmt.Errorf("%w: set page seg mode: %v", ErrEngine, err)
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return nil, fmt.Errorf("%w: set image: %v", ErrEngine, err)
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngine, err)
	}
	tokens := make([]Token, 0, len(boxes))
	for _, b := range boxes {
		tokens = append(tokens, Token{X: b.Box.Min.X, Y: b.Box.Min.Y, Text: b.Word})
	}
	return tokens, nil
}

// Balances keeps the tokens that parse to both an amount and a currency.
func (p *Parser) Balances(tokens []Token) []Balance {
	var out []Balance
	for _, t := range tokens {
		m, ok := p.ParseMoney(t.Text)
		if !ok {
			continue
		}
		out = append(out, Balance{X: t.X, Y: t.Y, Price: m})
	}
	return out
}

func joinTokens(tokens []Token) string {
	var b bytes.Buffer
	for i, t := range tokens {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.Text)
	}
	return normalizeOCRText(b.String())
}
