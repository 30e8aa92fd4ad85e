package dto

// ListIncidentsRequest represents an incident listing query
type ListIncidentsRequest struct {
	Status string `form:"status" example:"FIRING"`
	Start  int    `form:"start,default=0" example:"0"`
	Size   int    `form:"size,default=50" example:"50"`
}
