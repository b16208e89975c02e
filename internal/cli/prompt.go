package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// PromptForText asks label on out and reads one line from in. An empty
// answer, or a read failure, returns def.
func PromptForText(in io.Reader, out io.Writer, label, def string) string {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}

	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		if err != io.EOF {
			log.Warn().Err(err).Msg("Failed to read input, using default")
		}
		return def
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	return input
}
