package dto

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type NetworkInfo struct {
	Name    string `json:"name"`
	ChainID string `json:"chain_id"`
	Setup   bool   `json:"setup"`
}
