package editor

import "context"

// GenerateRequest is one image-plus-instruction call to an image model.
type GenerateRequest struct {
	ImageData   []byte
	MIMEType    string
	Instruction string
	AspectRatio string
}

// GeneratedImage is the image extracted from a model response.
type GeneratedImage struct {
	Data     []byte
	MIMEType string
	// Text is any text the model returned alongside the image.
	Text string
}

// Generator sends a request to an image model and extracts the resulting
// image. It isolates the service's response format from the rest of the
// package: implementations return an *EditError of KindGeneration when the
// response holds no image.
type Generator interface {
	GenerateImage(ctx context.Context, req GenerateRequest) (*GeneratedImage, error)
}
