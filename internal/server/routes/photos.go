package routes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"

	"github.com/photo365/photo365/internal/gallery"
	"github.com/photo365/photo365/internal/memo"
	"github.com/photo365/photo365/internal/server"
)

// Gallery 是路由层依赖的归档读取接口，由 gallery.Service 实现。
type Gallery interface {
	ListFolders(ctx context.Context, raw string, id gallery.Identity) ([]gallery.Folder, error)
	ListImages(ctx context.Context, raw string, id gallery.Identity) ([]gallery.Image, error)
	FolderText(ctx context.Context, raw string, id gallery.Identity) (string, bool, error)
	GetThumbnail(ctx context.Context, raw string, size int, id gallery.Identity) ([]byte, error)
	GetFolderThumbnail(ctx context.Context, raw string, size int, id gallery.Identity) ([]byte, error)
	CacheStats() (folders, images memo.Stats)
}

const webpContentType = "image/webp"

// folderPayload 在目录列表中附带 index.txt 的原文与渲染后的 HTML。
type folderPayload struct {
	Path string `json:"path"`
	Text string `json:"text,omitempty"`
	HTML string `json:"html,omitempty"`
}

type imagePayload struct {
	Path string `json:"path"`
}

// RegisterPhotoRoutes 暴露 /api/v1 下的目录、图片、说明文字与缩略图接口。
func RegisterPhotoRoutes(app *fiber.App, svc Gallery, logger *logrus.Logger) {
	if app == nil || svc == nil {
		return
	}

	api := app.Group("/api/v1")

	api.Get("/folders/*", func(c fiber.Ctx) error {
		raw, err := wildcardPath(c)
		if err != nil {
			return renderBadRequest(c, "invalid_path")
		}
		folders, err := svc.ListFolders(c.Context(), raw, server.Identity(c))
		if err != nil {
			return renderGalleryError(c, err)
		}
		return c.JSON(encodeFolders(folders, logger))
	})

	api.Get("/images/*", func(c fiber.Ctx) error {
		raw, err := wildcardPath(c)
		if err != nil {
			return renderBadRequest(c, "invalid_path")
		}
		images, err := svc.ListImages(c.Context(), raw, server.Identity(c))
		if err != nil {
			return renderGalleryError(c, err)
		}
		payload := make([]imagePayload, len(images))
		for i, img := range images {
			payload[i] = imagePayload{Path: img.Path.String()}
		}
		return c.JSON(payload)
	})

	// 不可见或没有说明文字的目录返回空正文，与可见但为空的说明保持一致。
	api.Get("/text/*", func(c fiber.Ctx) error {
		raw, err := wildcardPath(c)
		if err != nil {
			return renderBadRequest(c, "invalid_path")
		}
		text, _, err := svc.FolderText(c.Context(), raw, server.Identity(c))
		if err != nil {
			return renderGalleryError(c, err)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.SendString(text)
	})

	api.Get("/imageThumb/:size/*", func(c fiber.Ctx) error {
		raw, size, err := thumbParams(c)
		if err != nil {
			return renderBadRequest(c, err.Error())
		}
		data, err := svc.GetThumbnail(c.Context(), raw, size, server.Identity(c))
		if err != nil {
			return renderGalleryError(c, err)
		}
		return sendWebP(c, data)
	})

	api.Get("/folderThumb/:size/*", func(c fiber.Ctx) error {
		raw, size, err := thumbParams(c)
		if err != nil {
			return renderBadRequest(c, err.Error())
		}
		data, err := svc.GetFolderThumbnail(c.Context(), raw, size, server.Identity(c))
		if err != nil {
			return renderGalleryError(c, err)
		}
		return sendWebP(c, data)
	})
}

// wildcardPath 返回解码后的通配段，路径规范化交给 gallery 完成。
func wildcardPath(c fiber.Ctx) (string, error) {
	raw, err := url.PathUnescape(c.Params("*"))
	if err != nil {
		return "", err
	}
	return "/" + raw, nil
}

func thumbParams(c fiber.Ctx) (string, int, error) {
	size, err := strconv.Atoi(c.Params("size"))
	if err != nil {
		return "", 0, errors.New("invalid_size")
	}
	raw, err := wildcardPath(c)
	if err != nil {
		return "", 0, errors.New("invalid_path")
	}
	return raw, size, nil
}

func encodeFolders(folders []gallery.Folder, logger *logrus.Logger) []folderPayload {
	payload := make([]folderPayload, len(folders))
	for i, f := range folders {
		payload[i] = folderPayload{Path: f.Path.String()}
		if f.Text == nil {
			continue
		}
		payload[i].Text = *f.Text
		html, err := renderText(*f.Text)
		if err != nil {
			if logger != nil {
				logger.WithFields(logrus.Fields{"action": "render_text", "path": f.Path.String()}).
					Warnf("render folder text: %v", err)
			}
			continue
		}
		payload[i].HTML = html
	}
	return payload
}

// renderText 将 index.txt 按 Markdown 渲染为 HTML。
func renderText(src string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sendWebP 写出缩略图并基于内容哈希设置 ETag，命中 If-None-Match 时返回 304。
func sendWebP(c fiber.Ctx, data []byte) error {
	etag := fmt.Sprintf("%q", strconv.FormatUint(xxhash.Sum64(data), 16))
	c.Set(fiber.HeaderETag, etag)
	c.Set(fiber.HeaderCacheControl, "private, max-age=86400")
	if c.Get(fiber.HeaderIfNoneMatch) == etag {
		return c.SendStatus(fiber.StatusNotModified)
	}
	c.Set(fiber.HeaderContentType, webpContentType)
	return c.Send(data)
}

func renderBadRequest(c fiber.Ctx, code string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": code})
}

// renderGalleryError 将 gallery 错误类别映射为 HTTP 状态码。
func renderGalleryError(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, gallery.ErrNotAllowed):
		status = fiber.StatusForbidden
	case errors.Is(err, gallery.ErrThumb):
		status = fiber.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = fiber.StatusServiceUnavailable
	}
	code := "internal_error"
	if kind := gallery.KindOf(err); kind != 0 {
		code = kind.String()
	}
	return c.Status(status).JSON(fiber.Map{"error": code})
}
