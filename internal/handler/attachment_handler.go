package handler

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/filescan-registry/internal/dto"
	appErrors "github.com/noah-isme/filescan-registry/pkg/errors"
	"github.com/noah-isme/filescan-registry/pkg/response"
)

type attachmentManager interface {
	Add(ctx context.Context, sha256 string, payloads []dto.NamedPayload) (*dto.AttachmentList, error)
	List(ctx context.Context, sha256 string) (*dto.AttachmentList, error)
	Delete(ctx context.Context, sha256, filename string) (*dto.AttachmentList, error)
}

// AttachmentHandler serves the attachments of a file.
type AttachmentHandler struct {
	service attachmentManager
}

// NewAttachmentHandler constructs the handler.
func NewAttachmentHandler(service attachmentManager) *AttachmentHandler {
	return &AttachmentHandler{service: service}
}

// Add godoc
// @Summary Attach files to a file
// @Tags Attachments
// @Accept multipart/form-data
// @Produce json
// @Param sha256 path string true "sha256"
// @Param files formData file true "Attachments"
// @Success 201 {object} response.Envelope
// @Router /files/{sha256}/attachments [post]
func (h *AttachmentHandler) Add(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "multipart form required"))
		return
	}
	headers := formFiles(form)
	if len(headers) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "at least one file is required"))
		return
	}
	payloads := make([]dto.NamedPayload, 0, len(headers))
	for _, header := range headers {
		data, err := readPart(header)
		if err != nil {
			response.Error(c, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to read attachment"))
			return
		}
		payloads = append(payloads, dto.NamedPayload{Filename: header.Filename, Data: data})
	}
	result, err := h.service.Add(c.Request.Context(), c.Param("sha256"), payloads)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondList(c, http.StatusCreated, result)
}

// List godoc
// @Summary List attachments of a file
// @Tags Attachments
// @Produce json
// @Param sha256 path string true "sha256"
// @Success 200 {object} response.Envelope
// @Router /files/{sha256}/attachments [get]
func (h *AttachmentHandler) List(c *gin.Context) {
	result, err := h.service.List(c.Request.Context(), c.Param("sha256"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondList(c, http.StatusOK, result)
}

// Delete godoc
// @Summary Delete an attachment
// @Tags Attachments
// @Produce json
// @Param sha256 path string true "sha256"
// @Param filename path string true "Attachment name"
// @Success 200 {object} response.Envelope
// @Router /files/{sha256}/attachments/{filename} [delete]
func (h *AttachmentHandler) Delete(c *gin.Context) {
	result, err := h.service.Delete(c.Request.Context(), c.Param("sha256"), c.Param("filename"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondList(c, http.StatusOK, result)
}

func respondList(c *gin.Context, status int, result *dto.AttachmentList) {
	response.JSON(c, status, result, nil)
}

// formFiles returns every file part of form, whatever its field name,
// ordered by field name and then by position.
func formFiles(form *multipart.Form) []*multipart.FileHeader {
	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	headers := make([]*multipart.FileHeader, 0, len(fields))
	for _, field := range fields {
		headers = append(headers, form.File[field]...)
	}
	return headers
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	src, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close() //nolint:errcheck
	return io.ReadAll(src)
}
