package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/filescan-registry/internal/dto"
	"github.com/noah-isme/filescan-registry/internal/middleware"
	"github.com/noah-isme/filescan-registry/internal/models"
	appErrors "github.com/noah-isme/filescan-registry/pkg/errors"
	"github.com/noah-isme/filescan-registry/pkg/response"
)

type fileSearcher interface {
	Search(ctx context.Context, req dto.SearchRequest) (*dto.SearchResult, error)
	GetBySHA256(ctx context.Context, sha256 string, offset, limit int) (*dto.FileDetail, error)
}

type fileRegistry interface {
	LoadBySHA256(ctx context.Context, sha256 string) (*models.FileRecord, error)
	ReadContent(ctx context.Context, record *models.FileRecord) (io.ReadCloser, error)
	Ingest(ctx context.Context, req dto.IngestRequest) (*models.Occurrence, error)
	AddTag(ctx context.Context, sha256 string, tagID int64) error
	RemoveTag(ctx context.Context, sha256 string, tagID int64) error
	AddOccurrenceTag(ctx context.Context, occurrenceID string, tagID int64) error
	RemoveOccurrenceTag(ctx context.Context, occurrenceID string, tagID int64) error
	ListTags(ctx context.Context) ([]models.Tag, error)
	CreateTag(ctx context.Context, req dto.CreateTagRequest) (*models.Tag, error)
}

// FileHandler serves file lookup, ingestion and tagging endpoints.
type FileHandler struct {
	search fileSearcher
	files  fileRegistry
}

// NewFileHandler constructs the handler.
func NewFileHandler(search fileSearcher, files fileRegistry) *FileHandler {
	return &FileHandler{search: search, files: files}
}

// Search godoc
// @Summary Search files by name or hash
// @Tags Files
// @Produce json
// @Param name query string false "Substring of the file name"
// @Param hash query string false "md5, sha1 or sha256"
// @Param tags query string false "Comma separated tags, all required"
// @Param offset query int false "Offset"
// @Param limit query int false "Limit"
// @Success 200 {object} response.Envelope
// @Router /files [get]
func (h *FileHandler) Search(c *gin.Context) {
	var query dto.SearchQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidQuery, "invalid query parameters"))
		return
	}
	if query.Hash != nil && strings.TrimSpace(*query.Hash) == "" {
		query.Hash = nil
	}
	req := dto.SearchRequest{
		Name:   query.Name,
		Hash:   query.Hash,
		Tags:   splitTags(query.Tags),
		Offset: query.Offset,
		Limit:  query.Limit,
	}
	result, err := h.search.Search(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Items, &models.Pagination{
		Total:  result.Total,
		Offset: result.Offset,
		Limit:  result.Limit,
	}, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get a file and its occurrences, or its content with alt=media
// @Tags Files
// @Produce json
// @Produce octet-stream
// @Param sha256 path string true "sha256"
// @Param offset query int false "Offset"
// @Param limit query int false "Limit"
// @Param alt query string false "media to download the content"
// @Success 200 {object} response.Envelope
// @Router /files/{sha256} [get]
func (h *FileHandler) Get(c *gin.Context) {
	sha256 := c.Param("sha256")
	if c.Query("alt") == "media" {
		h.download(c, sha256)
		return
	}
	offset, limit, err := pageParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	detail, err := h.search.GetBySHA256(c.Request.Context(), sha256, offset, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"file": detail.File, "items": detail.Items}, &models.Pagination{
		Total:  detail.Total,
		Offset: detail.Offset,
		Limit:  detail.Limit,
	})
}

func (h *FileHandler) download(c *gin.Context, sha256 string) {
	record, err := h.files.LoadBySHA256(c.Request.Context(), sha256)
	if err != nil {
		response.Error(c, err)
		return
	}
	content, err := h.files.ReadContent(c.Request.Context(), record)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer content.Close() //nolint:errcheck

	response.Stream(c, record.SHA256, "", record.Size, content)
}

// Ingest godoc
// @Summary Register a file seen in a scan
// @Tags Files
// @Accept multipart/form-data
// @Produce json
// @Param scanId query string true "Scan identifier"
// @Param file formData file true "Content"
// @Success 201 {object} response.Envelope
// @Router /files [post]
func (h *FileHandler) Ingest(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to open file"))
		return
	}
	defer src.Close() //nolint:errcheck

	scanID := c.Query("scanId")
	if scanID == "" {
		scanID = c.PostForm("scanId")
	}
	occ, err := h.files.Ingest(c.Request.Context(), dto.IngestRequest{
		ScanID:  scanID,
		Name:    fileHeader.Filename,
		Content: src,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, occ)
}

// AddTag godoc
// @Summary Tag every occurrence of a file
// @Tags Tags
// @Param sha256 path string true "sha256"
// @Param tagId path int true "Tag ID"
// @Success 204
// @Router /files/{sha256}/tags/{tagId} [put]
func (h *FileHandler) AddTag(c *gin.Context) {
	tagID, err := tagIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.files.AddTag(c.Request.Context(), c.Param("sha256"), tagID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveTag godoc
// @Summary Remove a tag from every occurrence of a file
// @Tags Tags
// @Param sha256 path string true "sha256"
// @Param tagId path int true "Tag ID"
// @Success 204
// @Router /files/{sha256}/tags/{tagId} [delete]
func (h *FileHandler) RemoveTag(c *gin.Context) {
	tagID, err := tagIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.files.RemoveTag(c.Request.Context(), c.Param("sha256"), tagID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddOccurrenceTag godoc
// @Summary Tag a single occurrence
// @Tags Tags
// @Param id path string true "Occurrence ID"
// @Param tagId path int true "Tag ID"
// @Success 204
// @Router /occurrences/{id}/tags/{tagId} [put]
func (h *FileHandler) AddOccurrenceTag(c *gin.Context) {
	tagID, err := tagIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.files.AddOccurrenceTag(c.Request.Context(), c.Param("id"), tagID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveOccurrenceTag godoc
// @Summary Remove a tag from a single occurrence
// @Tags Tags
// @Param id path string true "Occurrence ID"
// @Param tagId path int true "Tag ID"
// @Success 204
// @Router /occurrences/{id}/tags/{tagId} [delete]
func (h *FileHandler) RemoveOccurrenceTag(c *gin.Context) {
	tagID, err := tagIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.files.RemoveOccurrenceTag(c.Request.Context(), c.Param("id"), tagID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListTags godoc
// @Summary List tags
// @Tags Tags
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /tags [get]
func (h *FileHandler) ListTags(c *gin.Context) {
	tags, err := h.files.ListTags(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tags, nil)
}

// CreateTag godoc
// @Summary Create a tag
// @Tags Tags
// @Accept json
// @Produce json
// @Param payload body dto.CreateTagRequest true "Tag"
// @Success 201 {object} response.Envelope
// @Router /tags [post]
func (h *FileHandler) CreateTag(c *gin.Context) {
	var req dto.CreateTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid tag payload"))
		return
	}
	tag, err := h.files.CreateTag(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tag)
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}

func pageParams(c *gin.Context) (int, int, error) {
	offset, err := intQuery(c, "offset")
	if err != nil {
		return 0, 0, err
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		return 0, 0, err
	}
	return offset, limit, nil
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrInvalidQuery, fmt.Sprintf("%s must be an integer", key))
	}
	return value, nil
}

func tagIDParam(c *gin.Context) (int64, error) {
	tagID, err := strconv.ParseInt(c.Param("tagId"), 10, 64)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrInvalidQuery, "tag id must be an integer")
	}
	return tagID, nil
}
