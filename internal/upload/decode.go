package upload

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// maxDecodedBody bounds a decompressed response body.
const maxDecodedBody = 8 << 20

// decodeBody reverses the response's Content-Encoding.
// Supports gzip, deflate, and brotli (br); identity or empty returns body unchanged.
func decodeBody(body []byte, contentEncoding string) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(strings.Split(contentEncoding, ",")[0]))
	if len(body) == 0 || encoding == "" || encoding == "identity" {
		return body, nil
	}

	var reader io.Reader
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("invalid gzip body: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(bytes.NewReader(body))
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(bytes.NewReader(body))
	default:
		return nil, fmt.Errorf("unsupported content encoding: %s", encoding)
	}

	decoded, err := io.ReadAll(io.LimitReader(reader, maxDecodedBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s body: %w", encoding, err)
	}
	if len(decoded) > maxDecodedBody {
		return nil, fmt.Errorf("decoded body exceeds %d bytes", maxDecodedBody)
	}
	return decoded, nil
}
