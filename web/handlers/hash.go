package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openeduhub/duplicate-detection/minhash"
)

type hashRequest struct {
	Text string `json:"text"`
}

// Hash returns the MinHash signature of a text. Useful for debugging
// similarity scores and for offline comparisons.
func Hash(c *gin.Context) {
	var req hashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"signature":  minhash.TextSignature(req.Text),
		"num_hashes": minhash.NumHashes,
	})
}
