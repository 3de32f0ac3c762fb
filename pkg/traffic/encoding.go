package traffic

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strings"

	"autovader.dev/cmd/pkg/errors"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// contentCodings lists the codings of h in the order they were applied,
// without identity.
func contentCodings(h http.Header) []string {
	var cs []string
	for _, v := range h.Values("Content-Encoding") {
		for _, c := range strings.Split(v, ",") {
			if c = strings.ToLower(strings.TrimSpace(c)); c != "" && c != "identity" {
				cs = append(cs, c)
			}
		}
	}
	return cs
}

// decodeContent undoes codings, last applied first. With limit > 0 at most
// limit+1 bytes are decoded, so a caller can tell the body was cut.
func decodeContent(codings []string, body []byte, limit int64) ([]byte, error) {
	var (
		r       io.Reader = bytes.NewReader(body)
		closers []io.Closer
	)

	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	for i := len(codings) - 1; i >= 0; i-- {
		rc, err := decoder(codings[i], r)
		if err != nil {
			return nil, errors.New("%s: %w", codings[i], err)
		}
		closers = append(closers, rc)
		r = rc
	}

	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}

	p, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.New("failed to decode body: %w", err)
	}

	return p, nil
}

func decoder(coding string, r io.Reader) (io.ReadCloser, error) {
	switch coding {
	case "gzip", "x-gzip":
		return gzip.NewReader(r)
	case "deflate":
		return deflate(r)
	case "br":
		return io.NopCloser(brotli.NewReader(r)), nil
	case "zstd":
		d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	default:
		return nil, errors.New("unsupported content coding")
	}
}

// deflate reads zlib streams and, for servers that send them, raw deflate.
func deflate(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)

	h, err := br.Peek(2)
	if err != nil {
		return nil, err
	}

	if h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0 {
		return zlib.NewReader(br)
	}

	return flate.NewReader(br), nil
}
