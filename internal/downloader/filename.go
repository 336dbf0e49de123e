package downloader

import (
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// filename*=UTF-8''encoded%20name.ext
var filenameExtendedRe = regexp.MustCompile(`filename\*=(?:[Uu][Tt][Ff]-8'')?([^;]+)`)

// extensionByContentType maps transfer content types onto file extensions for
// URLs that carry no usable name of their own
var extensionByContentType = map[string]string{
	"image/jpeg":               ".jpg",
	"image/png":                ".png",
	"image/gif":                ".gif",
	"image/webp":               ".webp",
	"image/svg+xml":            ".svg",
	"application/octet-stream": ".bin",
}

// fallbackExtension is used when the content type is unrecognized
const fallbackExtension = ".bin"

// resolveFilename determines the local filename for a transfer. Priority:
// the extended content-disposition directive, the basic directive, the last
// URL path segment when it carries an extension, and finally a short URL hash
// with an extension inferred from the content type.
func resolveFilename(header http.Header, rawURL string) string {
	if name := filenameFromDisposition(header.Get("Content-Disposition")); name != "" {
		return name
	}

	if u, err := url.Parse(rawURL); err == nil {
		base := path.Base(u.Path)
		if base != "." && base != "/" && strings.Contains(base, ".") {
			if decoded, err := url.PathUnescape(base); err == nil {
				return decoded
			}
			return base
		}
	}

	contentType := header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(contentType)

	ext, ok := extensionByContentType[contentType]
	if !ok {
		ext = fallbackExtension
	}

	sum := md5.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:8] + ext
}

// filenameFromDisposition extracts a filename from a content-disposition
// header value, preferring the RFC 5987 extended form
func filenameFromDisposition(disposition string) string {
	if disposition == "" {
		return ""
	}

	if m := filenameExtendedRe.FindStringSubmatch(disposition); m != nil {
		if decoded, err := url.PathUnescape(m[1]); err == nil {
			if name := strings.Trim(decoded, `"'`); name != "" {
				return name
			}
		}
	}

	if name := basicFilename(disposition); name != "" {
		return name
	}

	return ""
}

// basicFilename parses filename= with optional single or double quotes
func basicFilename(disposition string) string {
	idx := strings.Index(disposition, "filename=")
	if idx < 0 {
		return ""
	}
	value := disposition[idx+len("filename="):]

	if len(value) > 0 && (value[0] == '"' || value[0] == '\'') {
		quote := value[0]
		if end := strings.IndexByte(value[1:], quote); end >= 0 {
			return value[1 : end+1]
		}
		return strings.Trim(value, string(quote))
	}

	if end := strings.IndexByte(value, ';'); end >= 0 {
		value = value[:end]
	}
	return strings.TrimSpace(value)
}
