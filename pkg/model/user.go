package model

// UserID identifies an authenticated caller
type UserID string
