package series

type ListSeriesQuery struct {
	Limit     int    `query:"limit" json:"limit,omitempty" validate:"omitempty,min=1,max=200"`
	Offset    int    `query:"offset" json:"offset,omitempty" validate:"omitempty,min=0"`
	LibraryID string `query:"library_id" json:"library_id,omitempty"`
}

type UpdateSeriesPayload struct {
	Name *string `json:"name,omitempty" validate:"omitempty,max=255"`
}
