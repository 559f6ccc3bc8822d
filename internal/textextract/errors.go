package textextract

import "errors"

var errNoEngine = errors.New("no ocr engine configured")
