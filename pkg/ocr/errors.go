package ocr

import "errors"

// ErrDecode is returned when the screenshot bytes are not a decodable image.
var ErrDecode = errors.New("decode screenshot")

// ErrEngine is returned when the OCR engine itself fails (not when it finds nothing).
var ErrEngine = errors.New("ocr engine")
