package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// stdin is swapped in tests.
var stdin io.Reader = os.Stdin

func readLine() string {
	line, _ := bufio.NewReader(stdin).ReadString('\n')
	return strings.TrimSpace(line)
}

func yes(line string) bool {
	line = strings.ToLower(line)
	return line == "y" || line == "yes"
}

// Confirm prompts the user with a yes/no question. Returns true for yes.
func Confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", StyleWarning.Render(prompt))
	return yes(readLine())
}

// ConfirmDanger is like Confirm but styled with the error color (for destructive actions).
func ConfirmDanger(prompt string) bool {
	fmt.Printf("%s [y/N]: ", StyleError.Render("⚠ "+prompt))
	return yes(readLine())
}

// PromptInput asks for a line of text. An empty answer yields def.
func PromptInput(prompt, def string) string {
	if def != "" {
		fmt.Printf("%s %s: ", StyleValue.Render(prompt), StyleMeta.Render("["+def+"]"))
	} else {
		fmt.Printf("%s: ", StyleValue.Render(prompt))
	}
	if line := readLine(); line != "" {
		return line
	}
	return def
}
