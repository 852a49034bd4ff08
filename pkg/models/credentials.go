package models

// Credentials are the portal login read from the secrets file
type Credentials struct {
	UserID   string `json:"userid"`
	Password string `json:"password"`
}
