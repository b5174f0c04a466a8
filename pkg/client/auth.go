package client

import (
	"encoding/base64"
)

// Authenticator produces the Basic auth header for an access id/key pair.
type Authenticator struct {
	accessID  string
	accessKey string
}

// NewAuthenticator creates an Authenticator. Both values are required.
func NewAuthenticator(accessID, accessKey string) (*Authenticator, error) {
	if accessID == "" {
		return nil, &AuthenticationError{Message: "access id not set (SUMO_ACCESS_ID)"}
	}
	if accessKey == "" {
		return nil, &AuthenticationError{Message: "access key not set (SUMO_ACCESS_KEY)"}
	}
	return &Authenticator{accessID: accessID, accessKey: accessKey}, nil
}

// Header returns the Authorization header value.
func (a *Authenticator) Header() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(a.accessID+":"+a.accessKey))
}
