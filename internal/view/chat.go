package view

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"hailog/internal/display"
	"hailog/internal/format"
	"hailog/internal/hail"
)

const (
	ansiReset     = "\x1b[0m"
	ansiTimestamp = "\x1b[38;5;245m"
	ansiSeparator = "\x1b[38;5;240m"
	ansiAssistant = "\x1b[38;5;44m"
	ansiUser      = "\x1b[38;5;220m"
	ansiTool      = "\x1b[38;5;207m"
	ansiTask      = "\x1b[38;5;114m"
)

type align int

const (
	alignLeft align = iota
	alignCenter
	alignRight
)

// renderChatTranscript draws messages as bubbles: the user on the right,
// the agent on the left, tools and tasks centered. Sub-agent items are
// indented by their lane.
func renderChatTranscript(items []display.Item, width int, useColor bool) []string {
	if width <= 0 {
		width = 80
	}
	padding := 2

	lines := make([]string, 0, len(items)*4)
	for idx, it := range items {
		if idx > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, renderChatBubble(it, width, padding, useColor)...)
	}
	return lines
}

func renderChatBubble(it display.Item, totalWidth int, padding int, useColor bool) []string {
	event := it.Event.Event
	role := chatRole(it)

	var body []string
	if it.Kind == display.ItemEvent && (hail.IsMessage(event.Kind()) || event.Kind() == hail.KindThinking) {
		body = format.EventLines(event, 0)
	} else {
		body = []string{format.Headline(it)}
	}

	indent := it.Lane * 4
	maxContentWidth := totalWidth - padding*2 - 10 - indent
	if maxContentWidth < 20 {
		maxContentWidth = max(totalWidth-12-indent, 8)
	}

	headerText, headerLabel, headerTime := chatHeader(role, event.Timestamp)
	content := wrapLines(append([]string{headerText}, body...), maxContentWidth)
	bubbleWidth := min(contentMaxWidth(content), maxContentWidth)

	leftPad := indent + computeLeftPad(totalWidth-indent, bubbleWidth, padding, alignmentFor(event.Kind()))

	if useColor && len(content) > 0 {
		colored := fmt.Sprintf("%s · %s",
			colorize(true, roleColor(event.Kind()), headerLabel),
			colorize(true, ansiTimestamp, headerTime),
		)
		content[0] = strings.Replace(content[0], headerText, colored, 1)
	}

	top := fmt.Sprintf("%s╭%s╮", strings.Repeat(" ", leftPad), strings.Repeat("─", bubbleWidth+2))
	bottom := fmt.Sprintf("%s╰%s╯", strings.Repeat(" ", leftPad), strings.Repeat("─", bubbleWidth+2))

	result := []string{top}
	for _, line := range content {
		result = append(result, renderBubbleBodyLine(line, bubbleWidth, leftPad, useColor))
	}
	return append(result, bottom)
}

func renderBubbleBodyLine(line string, bubbleWidth int, leftPad int, useColor bool) string {
	displayLen := visibleWidth(line)
	if displayLen > bubbleWidth {
		line = truncateToWidth(line, bubbleWidth)
		displayLen = visibleWidth(line)
	}
	paddingRight := bubbleWidth - displayLen

	border := "│"
	if useColor {
		border = colorize(true, ansiSeparator, border)
	}

	return fmt.Sprintf("%s%s %s%s %s", strings.Repeat(" ", leftPad), border, line, strings.Repeat(" ", paddingRight), border)
}

func chatHeader(role string, ts time.Time) (header string, label string, timeText string) {
	label = titleCase(role)
	if label == "" {
		label = "Event"
	}
	timeText = "-"
	if !ts.IsZero() {
		timeText = ts.UTC().Format("Jan 02 15:04")
	}

	return fmt.Sprintf("%s · %s", label, timeText), label, timeText
}

func chatRole(it display.Item) string {
	switch it.Kind {
	case display.ItemCollapsedTask:
		return "task"
	case display.ItemGroup:
		return "tools"
	}
	switch kind := it.Event.Event.Kind(); kind {
	case hail.KindUserMessage:
		return "user"
	case hail.KindAgentMessage:
		return "assistant"
	case hail.KindSystemMessage:
		return "system"
	case hail.KindThinking:
		return "thinking"
	case hail.KindTaskStart, hail.KindTaskEnd:
		return "task"
	default:
		return "tool"
	}
}

func alignmentFor(kind hail.EventKind) align {
	switch kind {
	case hail.KindUserMessage:
		return alignRight
	case hail.KindAgentMessage, hail.KindThinking:
		return alignLeft
	default:
		return alignCenter
	}
}

func roleColor(kind hail.EventKind) string {
	switch kind {
	case hail.KindAgentMessage:
		return ansiAssistant
	case hail.KindUserMessage:
		return ansiUser
	case hail.KindTaskStart, hail.KindTaskEnd:
		return ansiTask
	case hail.KindThinking, hail.KindSystemMessage:
		return ansiSeparator
	default:
		return ansiTool
	}
}

func colorize(enabled bool, code string, text string) string {
	if !enabled {
		return text
	}
	return code + text + ansiReset
}

func computeLeftPad(totalWidth, bubbleWidth, padding int, a align) int {
	maxPad := max(totalWidth-bubbleWidth-4, 0)

	switch a {
	case alignRight:
		return maxPad
	case alignCenter:
		return min(max(maxPad/2, padding), maxPad)
	default:
		return min(padding, maxPad)
	}
}

func wrapLines(lines []string, width int) []string {
	var out []string
	for _, line := range lines {
		out = append(out, wrapText(line, width)...)
	}
	return out
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}
	text = strings.TrimRight(text, " ")
	if text == "" {
		return []string{""}
	}
	var out []string
	var current strings.Builder
	currentWidth := 0

	for _, r := range text {
		rw := runewidth.RuneWidth(r)
		if currentWidth+rw > width && current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
			currentWidth = 0
		}
		current.WriteRune(r)
		currentWidth += rw
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}

func titleCase(text string) string {
	runes := []rune(text)
	if len(runes) == 0 {
		return ""
	}
	runes[0] = unicode.ToUpper(runes[0])
	for i := 1; i < len(runes); i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

func contentMaxWidth(lines []string) int {
	widest := 0
	for _, line := range lines {
		widest = max(widest, visibleWidth(line))
	}
	return widest
}

// truncateToWidth cuts text to width visible columns, keeping ANSI
// sequences intact.
func truncateToWidth(text string, width int) string {
	if visibleWidth(text) <= width {
		return text
	}
	var out strings.Builder
	current := 0

	for i := 0; i < len(text); {
		if m := ansiPattern.FindStringIndex(text[i:]); m != nil && m[0] == 0 {
			out.WriteString(text[i : i+m[1]])
			i += m[1]
			continue
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		rw := runewidth.RuneWidth(r)
		if current+rw > width {
			break
		}
		out.WriteRune(r)
		current += rw
		i += size
	}
	return out.String()
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func visibleWidth(text string) int {
	clean := ansiPattern.ReplaceAllString(text, "")
	return runewidth.StringWidth(clean)
}
