// Package client defines the transport shared by vision model backends.
package client

import "context"

// VisionClient sends one prompt with one base64 encoded image to a vision
// model and returns the raw text answer.
type VisionClient interface {
	Query(ctx context.Context, model, prompt, imgB64 string) (string, error)
}
