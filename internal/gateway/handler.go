package gateway

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the gateway over HTTP.
type Handler struct {
	gw      *Gateway
	maxSize int64
}

func NewHandler(gw *Gateway, maxSize int64) *Handler {
	return &Handler{gw: gw, maxSize: maxSize}
}

// Upload handles POST /api/files/upload (interactive callers). The response
// carries an absolute access URL.
func (h *Handler) Upload(c *fiber.Ctx) error {
	return h.upload(c, true)
}

// APIUpload handles POST /api/files/api-upload (API-key callers). Same
// pipeline, relative access URL.
func (h *Handler) APIUpload(c *fiber.Ctx) error {
	return h.upload(c, false)
}

func (h *Handler) upload(c *fiber.Ctx, absoluteURL bool) error {
	user := CurrentUser(c)
	if user == nil {
		return UnauthorizedError("Missing auth token")
	}

	platform := c.FormValue("platform")
	if platform == "" {
		return NewAppError("INVALID_PAYLOAD", 400, "Platform is required")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "No file uploaded")
	}
	if file.Size > h.maxSize {
		msg := fmt.Sprintf("File too large: %d bytes (max %d)", file.Size, h.maxSize)
		return NewAppError("FILE_TOO_LARGE", 413, msg)
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open uploaded file: %w", err)
	}
	data, err := io.ReadAll(src)
	src.Close()
	if err != nil {
		return fmt.Errorf("read uploaded file: %w", err)
	}

	rec, err := h.gw.Store(c.Context(), &StoreRequest{
		Platform:    platform,
		OwnerID:     user.ID,
		FileName:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
		UploadIP:    c.IP(),
	})
	if err != nil {
		return err
	}

	accessURL := "/file/" + url.PathEscape(rec.ID)
	if absoluteURL {
		accessURL = c.BaseURL() + accessURL
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"fileId":      rec.ID,
		"platform":    string(rec.Platform),
		"fileName":    rec.FileName,
		"fileSize":    rec.SizeBytes,
		"contentType": rec.ContentType,
		"accessUrl":   accessURL,
	})
}

// Serve handles GET /file/*: streams the stored bytes back through the
// adapter named in the record. Public: the file id is the capability.
func (h *Handler) Serve(c *fiber.Ctx) error {
	id := c.Params("*")
	// PathUnescape, not QueryUnescape: a literal '+' in a file name must
	// survive the round trip through the access URL.
	if decoded, err := url.PathUnescape(id); err == nil {
		id = decoded
	}
	if id == "" {
		return NotFoundError(id)
	}

	rec, res, err := h.gw.Fetch(c.Context(), id)
	if err != nil {
		return err
	}

	// Prefer the content type recorded at upload over whatever the platform
	// labels the bytes with today.
	contentType := rec.ContentType
	if contentType == "" {
		contentType = res.ContentType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, contentDisposition(rec.FileName))
	return c.SendStream(res.Body)
}

// contentDisposition builds an RFC 5987 inline disposition: an ASCII-safe
// fallback plus the UTF-8 percent-encoded real name.
func contentDisposition(fileName string) string {
	if fileName == "" {
		fileName = "file"
	}
	ascii := strings.Map(func(r rune) rune {
		if r > 0x7e || r < 0x20 || r == '"' || r == '\\' {
			return '?'
		}
		return r
	}, fileName)
	return fmt.Sprintf(`inline; filename="%s"; filename*=UTF-8''%s`,
		ascii, url.PathEscape(fileName))
}

// List handles GET /api/files.
func (h *Handler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	if limit < 1 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	files, total, err := h.gw.List(c.Context(), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"files":  files,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Delete handles DELETE /api/files/:id. Registry removal only, the platform
// copy stays.
func (h *Handler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if decoded, err := url.PathUnescape(id); err == nil {
		id = decoded
	}
	if err := h.gw.Delete(c.Context(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "File deleted successfully"})
}

// RegisterRoutes wires the gateway endpoints. authMW guards the interactive
// endpoints, apiKeyMW the programmatic upload; serving a file is public.
func RegisterRoutes(app *fiber.App, h *Handler, authMW, apiKeyMW fiber.Handler) {
	files := app.Group("/api/files")
	files.Get("/", authMW, h.List)
	files.Post("/upload", authMW, h.Upload)
	files.Post("/api-upload", apiKeyMW, h.APIUpload)
	files.Delete("/:id", authMW, h.Delete)

	app.Get("/file/*", h.Serve)
}
