package httpdto

import (
	"time"

	"medportal/internal/domain/artifact"
	"medportal/internal/ledger"
)

// CreateArtifactForm holds the multipart fields of POST /artifacts. The
// report itself is sent in the "file" part.
type CreateArtifactForm struct {
	RecipientWallet string `form:"recipient_id" binding:"required"`
	Title           string `form:"title" binding:"required"`
	Description     string `form:"description"`
}

// UpdateStatusRequest is used for PATCH /artifacts/:id/status
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ArtifactDTO represents an artifact in API responses
type ArtifactDTO struct {
	ID            string `json:"id"`
	ProducerID    string `json:"producer_wallet"`
	RecipientID   string `json:"recipient_wallet"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	ContentType   string `json:"content_type"`
	ContentURL    string `json:"content_url,omitempty"`
	DownloadURL   string `json:"download_url,omitempty"`
	ContentSHA256 string `json:"content_sha256"`
	SizeBytes     int64  `json:"size_bytes"`
	MetadataURI   string `json:"metadata_uri,omitempty"`
	LedgerTxID    string `json:"ledger_tx_id,omitempty"`
	MintAddress   string `json:"mint_address"`
	Status        string `json:"status"`
	Confirmed     bool   `json:"confirmed"`
	FailureReason string `json:"failure_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func NewArtifactDTO(r artifact.Record) ArtifactDTO {
	return ArtifactDTO{
		ID:            r.ID.String(),
		ProducerID:    r.ProducerID,
		RecipientID:   r.RecipientID,
		Title:         r.Title,
		Description:   r.Description,
		ContentType:   r.ContentType,
		ContentURL:    r.ContentURL,
		ContentSHA256: r.ContentSHA256,
		SizeBytes:     r.SizeBytes,
		MetadataURI:   r.MetadataURI,
		LedgerTxID:    r.LedgerTxID,
		MintAddress:   r.MintAddress,
		Status:        string(r.Status),
		Confirmed:     r.Status.Confirmed(),
		FailureReason: r.FailureReason,
		CreatedAt:     r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ListArtifactsResponse is returned when listing a wallet's artifacts
type ListArtifactsResponse struct {
	WalletAddress string        `json:"wallet_address"`
	Role          string        `json:"role"`
	Artifacts     []ArtifactDTO `json:"artifacts"`
}

func NewListArtifactsResponse(wallet, role string, records []artifact.Record) ListArtifactsResponse {
	out := make([]ArtifactDTO, 0, len(records))
	for _, r := range records {
		out = append(out, NewArtifactDTO(r))
	}
	return ListArtifactsResponse{WalletAddress: wallet, Role: role, Artifacts: out}
}

// LedgerBlockDTO represents a ledger transaction
type LedgerBlockDTO struct {
	TxID      string       `json:"tx_id"`
	Index     int          `json:"index"`
	PrevHash  string       `json:"prev_hash"`
	Timestamp string       `json:"timestamp"`
	Entry     ledger.Entry `json:"entry"`
}

func NewLedgerBlockDTO(b ledger.Block) LedgerBlockDTO {
	return LedgerBlockDTO{
		TxID:      b.Hash,
		Index:     b.Index,
		PrevHash:  b.PrevHash,
		Timestamp: time.UnixMilli(b.Timestamp).UTC().Format(time.RFC3339),
		Entry:     b.Entry,
	}
}
