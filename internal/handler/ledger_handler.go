package handler

import (
	"net/http"

	"medportal/internal/ledger"
	"medportal/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type BlockReader interface {
	Lookup(txID string) (ledger.Block, error)
}

type LedgerHandler struct {
	ledger BlockReader
}

func NewLedgerHandler(l BlockReader) *LedgerHandler {
	return &LedgerHandler{ledger: l}
}

// Get returns the block registered under a transaction id.
func (h *LedgerHandler) Get(c *gin.Context) {
	block, err := h.ledger.Lookup(c.Param("tx"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewLedgerBlockDTO(block)))
}
