//go:build !gosseract

package ocr

import "errors"

func newGosseract(Config) (Engine, error) {
	return nil, errors.New("gosseract engine not compiled in: rebuild with -tags gosseract")
}
