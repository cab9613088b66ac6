package dto

type RegisterIdentityRequest struct {
	Name    string      `json:"name" binding:"required"`
	Vectors [][]float32 `json:"vectors" binding:"required,min=1"`
}

type IdentityResponse struct {
	ID           int      `json:"id"`
	Name         string   `json:"name"`
	Dim          int      `json:"dim"`
	Samples      int      `json:"samples,omitempty"`
	ImageKeys    []string `json:"image_keys,omitempty"`
	RegisteredAt string   `json:"registered_at"`
}

type IdentityListResponse struct {
	Identities []IdentityResponse `json:"identities"`
	Total      int                `json:"total"`
}
