package editor

// Gemini image model IDs
//
// | Model Name            | API Model ID           | Use Case                   |
// |-----------------------|------------------------|----------------------------|
// | Gemini 2.5 Flash Image| gemini-2.5-flash-image | Fast image edit/generation |
const (
	// ModelGemini25FlashImage is the fast image edit model.
	ModelGemini25FlashImage = "gemini-2.5-flash-image"
)

// DefaultModelName is the image model used when none is configured.
const DefaultModelName = ModelGemini25FlashImage

// DefaultAspectRatio is the aspect ratio hint sent with every request. The
// composition instruction asks for a 4:5 frame, and 3:4 is the nearest
// taller container for it. Models that honour 4:5 directly can be given
// "4:5" through configuration.
const DefaultAspectRatio = "3:4"
