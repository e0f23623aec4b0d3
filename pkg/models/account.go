package models

// AccountID is the external identity a container and a vault balance are keyed
// to. It is the identity resolved by the auth layer (normally an email).
type AccountID string
