package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"medportal/internal/domain/artifact"
	"medportal/internal/identity"
	"medportal/internal/services"
	"medportal/internal/transport/httpdto"
	ws "medportal/internal/websocket"
	portal_errors "medportal/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ArtifactAPI interface {
	Create(ctx context.Context, in services.CreateArtifactInput) (artifact.Record, error)
	ListForWallet(ctx context.Context, wallet string, role identity.Role) ([]artifact.Record, error)
	Get(ctx context.Context, id uuid.UUID, wallet string) (artifact.Record, error)
	UpdateStatus(ctx context.Context, actor string, id uuid.UUID, status artifact.Status) (artifact.Record, error)
	Reconcile(ctx context.Context, actor string, id uuid.UUID) (artifact.Record, error)
}

// Notifier reaches a wallet's open dashboards.
type Notifier interface {
	NotifyWallet(wallet string, f ws.Frame) int
}

// Presigner hands out short-lived download links for stored content.
type Presigner interface {
	PresignGet(ctx context.Context, key string) (string, error)
}

type ArtifactHandler struct {
	service   ArtifactAPI
	notifier  Notifier
	presigner Presigner
	maxUpload int64
}

func NewArtifactHandler(service ArtifactAPI, notifier Notifier, presigner Presigner, maxUpload int64) *ArtifactHandler {
	return &ArtifactHandler{service: service, notifier: notifier, presigner: presigner, maxUpload: maxUpload}
}

// Create runs the creation workflow for a multipart upload.
func (h *ArtifactHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	wallet, _ := services.WalletFromContext(ctx)

	var form httpdto.CreateArtifactForm
	if err := c.ShouldBind(&form); err != nil {
		badRequest(c, "recipient_id and title are required")
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	if h.maxUpload > 0 && fh.Size > h.maxUpload {
		writeError(c, portal_errors.ErrTooLarge)
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, "unreadable file")
		return
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		badRequest(c, "unreadable file")
		return
	}

	rec, err := h.service.Create(ctx, services.CreateArtifactInput{
		ProducerID:  wallet,
		RecipientID: form.RecipientWallet,
		Title:       form.Title,
		Description: form.Description,
		ContentType: fh.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		var wfErr *services.WorkflowError
		if errors.As(err, &wfErr) {
			h.notifyFailure(wallet, wfErr)
			if wfErr.Record != nil {
				c.JSON(http.StatusAccepted, httpdto.NewSuccessResponse(httpdto.NewArtifactDTO(*wfErr.Record)))
				return
			}
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.NewArtifactDTO(rec)))
}

func (h *ArtifactHandler) notifyFailure(wallet string, wfErr *services.WorkflowError) {
	if h.notifier == nil {
		return
	}
	notice := gin.H{
		"event": "artifact_failed",
		"step":  string(wfErr.Step),
		"error": wfErr.Err.Error(),
	}
	if wfErr.Record != nil {
		notice["artifact"] = httpdto.NewArtifactDTO(*wfErr.Record)
	}
	h.notifier.NotifyWallet(wallet, ws.Frame{Type: ws.FrameNotice, Data: notice})
}

// List returns the session wallet's artifacts: received for patients,
// produced for doctors.
func (h *ArtifactHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	wallet, _ := services.WalletFromContext(ctx)
	role, _ := services.RoleFromContext(ctx)

	records, err := h.service.ListForWallet(ctx, wallet, role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewListArtifactsResponse(wallet, string(role), records)))
}

func (h *ArtifactHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid artifact id")
		return
	}
	wallet, _ := services.WalletFromContext(c.Request.Context())
	rec, err := h.service.Get(c.Request.Context(), id, wallet)
	if err != nil {
		writeError(c, err)
		return
	}
	dto := httpdto.NewArtifactDTO(rec)
	if h.presigner != nil && rec.ContentKey != "" {
		url, err := h.presigner.PresignGet(c.Request.Context(), rec.ContentKey)
		if err == nil {
			dto.DownloadURL = url
		}
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(dto))
}

func (h *ArtifactHandler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid artifact id")
		return
	}
	var req httpdto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	wallet, _ := services.WalletFromContext(c.Request.Context())
	rec, err := h.service.UpdateStatus(c.Request.Context(), wallet, id, artifact.Status(req.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewArtifactDTO(rec)))
}

func (h *ArtifactHandler) Reconcile(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid artifact id")
		return
	}
	wallet, _ := services.WalletFromContext(c.Request.Context())
	rec, err := h.service.Reconcile(c.Request.Context(), wallet, id)
	if err != nil {
		var wfErr *services.WorkflowError
		if errors.As(err, &wfErr) {
			h.notifyFailure(wallet, wfErr)
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewArtifactDTO(rec)))
}
