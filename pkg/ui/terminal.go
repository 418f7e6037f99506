package ui

import (
	"fmt"

	"github.com/fatih/color"
)

// ASCII logo for the application
const ASCIILogo = `
    ╔═════════════════════════════════════════════════════════════╗
    ║ ██╗    ██╗██╗  ██╗███████╗██╗  ██╗██████╗  ██████╗ ██████╗  ║
    ║ ██║    ██║╚██╗██╔╝██╔════╝╚██╗██╔╝██╔══██╗██╔═══██╗██╔══██╗ ║
    ║ ██║ █╗ ██║ ╚███╔╝ █████╗   ╚███╔╝ ██████╔╝██║   ██║██████╔╝ ║
    ║ ██║███╗██║ ██╔██╗ ██╔══╝   ██╔██╗ ██╔═══╝ ██║   ██║██╔══██╗ ║
    ║ ╚███╔███╔╝██╔╝ ██╗███████╗██╔╝ ██╗██║     ╚██████╔╝██║  ██║ ║
    ║  ╚══╝╚══╝ ╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝╚═╝      ╚═════╝ ╚═╝  ╚═╝ ║
    ║        公众号文章导出  HTML / PDF / DOCX                     ║
    ╚═════════════════════════════════════════════════════════════╝
`

// Color functions for terminal output
var (
	Cyan    = color.New(color.FgCyan).SprintFunc()
	Yellow  = color.New(color.FgYellow).SprintFunc()
	Red     = color.New(color.FgRed).SprintFunc()
	Green   = color.New(color.FgGreen).SprintFunc()
	Magenta = color.New(color.FgMagenta).SprintFunc()
	Dim     = color.New(color.Faint).SprintFunc()
)

// SetColors forces colored output on or off. fatih/color already
// disables itself for NO_COLOR and non-terminals.
func SetColors(enabled bool) {
	color.NoColor = !enabled
}

// PrintLogo prints the ASCII logo with color
func PrintLogo() {
	fmt.Fprint(color.Output, Green(ASCIILogo))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(color.Error, Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(color.Error, Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	fmt.Fprintln(color.Output, Green(msg))
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	fmt.Fprintf(color.Output, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(color.Output, Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(color.Output, Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	fmt.Fprintln(color.Output, Magenta(msg))
}
