package services

import (
	"time"

	"github.com/google/uuid"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IDFunc produces identifiers for new entities.
type IDFunc func() string

func NewID() string { return uuid.NewString() }
