package constants

// TextSource records which extraction branch produced a page's text.
type TextSource string

const (
	TextSourceEmbedded TextSource = "embedded" // PDF text layer
	TextSourceOCR      TextSource = "ocr"      // tesseract on the rasterized page
	TextSourceNone     TextSource = "none"     // both branches came back empty or failed
)

// DefaultMinTextLength is the trimmed character count below which embedded text is ignored.
const DefaultMinTextLength = 10

// DefaultDPI is the rasterization resolution used for OCR input.
const DefaultDPI = 300
