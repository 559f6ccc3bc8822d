//go:build gosseract

package ocr

import (
	"context"
	"fmt"
	"strconv"

	"github.com/otiai10/gosseract/v2"
)

// Gosseract runs tesseract in-process through the cgo binding.
type Gosseract struct {
	cfg           Config
	clientFactory func() *gosseract.Client
	limiter       *callLimiter
}

func newGosseract(cfg Config) (Engine, error) {
	return &Gosseract{cfg: cfg, clientFactory: gosseract.NewClient, limiter: newCallLimiter(cfg.MaxInFlight)}, nil
}

func (g *Gosseract) Recognize(ctx context.Context, imagePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return g.limiter.do(ctx, func() (string, error) {
		c := g.clientFactory()
		defer c.Close()
		if err := g.configure(c, imagePath); err != nil {
			return "", err
		}
		text, err := c.Text()
		if err != nil {
			return "", fmt.Errorf("recognize text: %w", err)
		}
		return text, nil
	})
}

func (g *Gosseract) configure(c *gosseract.Client, imagePath string) error {
	if g.cfg.TessdataDir != "" {
		if err := c.SetTessdataPrefix(g.cfg.TessdataDir); err != nil {
			return fmt.Errorf("set tessdata: %w", err)
		}
	}
	if err := c.SetLanguage(g.cfg.Language); err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	if g.cfg.PSM > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(g.cfg.PSM)); err != nil {
			return fmt.Errorf("set psm: %w", err)
		}
	}
	if g.cfg.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(g.cfg.DPI)); err != nil {
			return fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := c.SetImage(imagePath); err != nil {
		return fmt.Errorf("set image: %w", err)
	}
	return nil
}
