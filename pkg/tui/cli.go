// Package tui provides the terminal output layer for the formflow CLI.
// Simple streaming output - clean prompts, summaries, and progress, no
// full-screen TUI.
package tui

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

// PrintHeader prints the CLI banner.
func PrintHeader(version string) {
	fmt.Println()
	fmt.Println(titleStyle.Render("  FORMFLOW") + mutedStyle.Render(" v"+version))
	fmt.Println(mutedStyle.Render("  Form submission scheduling and QC report aggregation"))
	fmt.Println()
}

// PassSummary holds the result of one scheduling pass for display.
type PassSummary struct {
	PassID     string
	Project    string
	Queued     int
	Dispatched int
	Skipped    int
	Resumed    bool
	Duration   time.Duration
}

// PrintPassSummary prints the outcome of a scheduling pass.
func PrintPassSummary(s PassSummary) {
	fmt.Println()
	fmt.Println(successStyle.Render("  ✓ SCHEDULING PASS COMPLETE"))
	fmt.Println()
	fmt.Printf("  %s %s\n", mutedStyle.Render("Pass:"), titleStyle.Render(s.PassID))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Project:"), titleStyle.Render(s.Project))
	if s.Resumed {
		fmt.Printf("  %s %s\n", mutedStyle.Render("Mode:"), accentStyle.Render("resumed"))
	}
	fmt.Printf("  %s %s queued, %s dispatched, %s skipped\n",
		mutedStyle.Render("Files:"),
		titleStyle.Render(fmt.Sprintf("%d", s.Queued)),
		successStyle.Render(fmt.Sprintf("%d", s.Dispatched)),
		mutedStyle.Render(fmt.Sprintf("%d", s.Skipped)))
	if s.Duration > 0 {
		fmt.Printf("  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(s.Duration)))
	}
	fmt.Println()
}

// ReportSummary holds the result of one report pass for display.
type ReportSummary struct {
	Projects int
	Rows     int
	Visited  int
	Skipped  int
	Output   string
	Duration time.Duration
}

// PrintReportSummary prints the outcome of a report pass.
func PrintReportSummary(s ReportSummary) {
	fmt.Println()
	fmt.Println(successStyle.Render("  ✓ REPORT COMPLETE"))
	fmt.Println()
	fmt.Printf("  %s %s projects, %s files visited, %s skipped\n",
		mutedStyle.Render("Scope:"),
		titleStyle.Render(fmt.Sprintf("%d", s.Projects)),
		titleStyle.Render(fmt.Sprintf("%d", s.Visited)),
		mutedStyle.Render(fmt.Sprintf("%d", s.Skipped)))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Rows:"), titleStyle.Render(fmt.Sprintf("%d", s.Rows)))
	if s.Output != "" {
		fmt.Printf("  %s %s\n", mutedStyle.Render("Output:"), titleStyle.Render(s.Output))
	}
	if s.Duration > 0 {
		fmt.Printf("  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(s.Duration)))
	}
	fmt.Println()
}

// PrintSkipWarning prints a muted per-file skip note.
func PrintSkipWarning(file, reason string) {
	fmt.Printf("  %s %s %s\n",
		accentStyle.Render("!"),
		titleStyle.Render(file),
		mutedStyle.Render(reason))
}

// Confirm prompts for a yes/no answer, defaulting to yes.
func Confirm(prompt string) (bool, error) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("  %s [Y/n]: ", prompt)

	input, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}

	input = strings.ToLower(strings.TrimSpace(input))
	return input == "" || input == "y" || input == "yes", nil
}

// ClearLine clears the current line.
func ClearLine() {
	fmt.Print("\r\033[K")
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

// ShowProgress creates a progress bar for a pass over a known file count.
func ShowProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// Spinner shows a simple loading indicator until done is closed.
func Spinner(message string, done chan bool) {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	i := 0
	for {
		select {
		case <-done:
			fmt.Printf("\r%s %s\n", successStyle.Render("✓"), message)
			return
		default:
			fmt.Printf("\r%s %s", accentStyle.Render(frames[i]), message)
			i = (i + 1) % len(frames)
			time.Sleep(80 * time.Millisecond)
		}
	}
}
