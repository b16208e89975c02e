// Package assets provides embedded static assets for the application.
//
// Prompt templates are stored as text files under prompts/ and embedded at compile time.
package assets

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"
)

// CompositionProtocol is the fixed block of directives sent ahead of every user
// request: target 4:5, crop to the subject, outpaint missing background, no
// forced margins, keep the subject undistorted.
//
//go:embed prompts/composition-protocol.txt
var CompositionProtocol string

// DefaultUserRequest replaces an empty user prompt.
const DefaultUserRequest = "Recompose this image into the most beautiful 4:5 composition you can find."

//go:embed prompts/composition-instruction.txt
var compositionInstructionTemplate string

// template.Must panics on a malformed template at startup rather than at call time.
var compositionInstructionTmpl = template.Must(template.New("composition").Parse(compositionInstructionTemplate))

// InstructionData holds the dynamic data injected into the instruction template.
type InstructionData struct {
	Protocol string
	Request  string
}

// RenderCompositionInstruction renders the full instruction sent to the image
// model. request must already be trimmed; an empty request is replaced by
// DefaultUserRequest.
func RenderCompositionInstruction(request string) string {
	if request == "" {
		request = DefaultUserRequest
	}
	var buf bytes.Buffer
	// Execution errors are not expected with this template; whatever was
	// rendered is returned.
	_ = compositionInstructionTmpl.Execute(&buf, InstructionData{
		Protocol: strings.TrimSpace(CompositionProtocol),
		Request:  request,
	})
	return strings.TrimRight(buf.String(), "\n")
}
