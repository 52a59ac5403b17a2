package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"polegrid/internal/service"
)

var errInvalidBody = errors.New("invalid request body")

// fieldName strips the "[]" suffix browsers and form libraries append to repeated keys.
func fieldName(key string) string {
	return strings.TrimSuffix(key, "[]")
}

// collapse turns single-valued form keys into strings and keeps repeated ones as lists.
func collapse(values map[string][]string) map[string]any {
	out := make(map[string]any, len(values))
	for k, vs := range values {
		switch len(vs) {
		case 0:
			out[k] = nil
		case 1:
			out[k] = vs[0]
		default:
			out[k] = vs
		}
	}
	return out
}

// parseSubmission reads fields and files from a multipart, url-encoded or JSON body.
// The returned closer releases opened upload files and must always be called.
func parseSubmission(c *fiber.Ctx) (service.Submission, func(), error) {
	sub := service.Submission{Fields: map[string]any{}, Files: map[string][]service.File{}}
	var closers []io.Closer
	release := func() {
		for _, cl := range closers {
			cl.Close()
		}
	}

	ct := strings.ToLower(string(c.Request().Header.ContentType()))
	switch {
	case strings.HasPrefix(ct, fiber.MIMEMultipartForm):
		form, err := c.MultipartForm()
		if err != nil {
			return sub, release, fmt.Errorf("%w: %v", errInvalidBody, err)
		}
		values := make(map[string][]string, len(form.Value))
		for k, vs := range form.Value {
			name := fieldName(k)
			values[name] = append(values[name], vs...)
		}
		sub.Fields = collapse(values)

		for k, fhs := range form.File {
			name := fieldName(k)
			for _, fh := range fhs {
				f, err := fh.Open()
				if err != nil {
					return sub, release, fmt.Errorf("open upload %s: %w", fh.Filename, err)
				}
				closers = append(closers, f)
				sub.Files[name] = append(sub.Files[name], service.File{
					Filename:    fh.Filename,
					ContentType: fh.Header.Get(fiber.HeaderContentType),
					Size:        fh.Size,
					Reader:      f,
				})
			}
		}

	case strings.HasPrefix(ct, fiber.MIMEApplicationForm):
		values := map[string][]string{}
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			name := fieldName(string(key))
			values[name] = append(values[name], string(value))
		})
		sub.Fields = collapse(values)

	case strings.HasPrefix(ct, fiber.MIMEApplicationJSON):
		body := c.Body()
		if len(body) == 0 {
			break
		}
		var fields map[string]any
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return sub, release, fmt.Errorf("%w: %v", errInvalidBody, err)
		}
		if fields == nil {
			return sub, release, fmt.Errorf("%w: expected a JSON object", errInvalidBody)
		}
		if dec.More() {
			return sub, release, fmt.Errorf("%w: trailing data after JSON object", errInvalidBody)
		}
		sub.Fields = fields
	}

	return sub, release, nil
}
