package types

type ApplicationCreateRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=128"`
	Description string `json:"description" validate:"required,min=10"`
}
