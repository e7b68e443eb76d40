package handlers

import (
	"net/http"

	"github.com/SMVEC2025/agribackend/internal/config"
)

type PopupHandlers struct {
	cfg *config.PopupConfig
}

func NewPopupHandlers(cfg *config.PopupConfig) *PopupHandlers {
	return &PopupHandlers{cfg: cfg}
}

type PopupResponse struct {
	Status bool   `json:"status"`
	Img    string `json:"img,omitempty"`
}

// GetPop tells the frontend whether to show the promotional popup and which
// image to load.
func (h *PopupHandlers) GetPop(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Enabled {
		respondWithJSON(w, http.StatusOK, PopupResponse{Status: false})
		return
	}

	respondWithJSON(w, http.StatusOK, PopupResponse{
		Status: true,
		Img:    h.cfg.ImageURL,
	})
}
