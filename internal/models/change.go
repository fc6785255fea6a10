package models

// Change is a single field-path write within a patch request.
type Change struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}
