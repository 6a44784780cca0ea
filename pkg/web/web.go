// Package web provides the gin front ends for the generator and labeler
// apps. Pages are embedded html/template documents; status messages
// travel as query parameters across the post/redirect/get cycle.
package web

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"os"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// previewWidth caps the labeler's inline image preview.
var previewWidth = 640

// flash is a one-shot status message rendered at the top of a page.
type flash struct {
	Message string
	Kind    string
}

// flashRedirect sends the browser back to a page with a status message.
func flashRedirect(c *gin.Context, path string, kind string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if kind == "error" {
		klog.Warningf("flash: %s", msg)
	}
	c.Redirect(http.StatusSeeOther, path+"?kind="+kind+"&msg="+url.QueryEscape(msg))
}

// flashFromQuery recovers a flash message from redirect query parameters.
func flashFromQuery(c *gin.Context) *flash {
	msg := c.Query("msg")
	if msg == "" {
		return nil
	}

	kind := c.Query("kind")
	if kind != "success" && kind != "error" {
		kind = "success"
	}
	return &flash{Message: msg, Kind: kind}
}

// renderPage executes a page template, emitting a plain 500 if it fails.
func renderPage(c *gin.Context, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		klog.Errorf("execute: %v", err)
		c.String(http.StatusInternalServerError, "template error: %v", err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// dataURI inlines image bytes as a base64 data URI, sniffing the content
// type from the payload.
func dataURI(bs []byte) string {
	mt := mimetype.Detect(bs)
	return "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(bs)
}

// previewURI returns an inline preview for an image file, resized down to
// previewWidth when the format can be decoded. Files that can't be
// decoded are inlined untouched; the preview is presentation only.
func previewURI(path string) (string, error) {
	img, err := imgio.Open(path)
	if err != nil {
		klog.V(1).Infof("decode %s failed, inlining raw bytes: %v", path, err)
		bs, rerr := os.ReadFile(path)
		if rerr != nil {
			return "", fmt.Errorf("read: %w", rerr)
		}
		return dataURI(bs), nil
	}

	if img.Bounds().Dx() > previewWidth {
		scale := float64(img.Bounds().Dx()) / float64(previewWidth)
		y := int(float64(img.Bounds().Dy()) / scale)
		img = transform.Resize(img, previewWidth, y, transform.Lanczos)
	}

	var buf bytes.Buffer
	enc := imgio.JPEGEncoder(85)
	if err := enc(&buf, img); err != nil {
		return "", fmt.Errorf("encode preview: %w", err)
	}
	return dataURI(buf.Bytes()), nil
}

// plural formats a count with a naively pluralized noun.
func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// formFileBytes reads an uploaded form file fully into memory. A missing
// file is not an error: ok is false.
func formFileBytes(c *gin.Context, field string) ([]byte, string, bool, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, "", false, nil
	}

	f, err := fh.Open()
	if err != nil {
		return nil, "", false, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, "", false, fmt.Errorf("read upload: %w", err)
	}

	return buf.Bytes(), fh.Filename, true, nil
}
