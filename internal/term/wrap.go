package term

import "strings"

// WrapParas word-wraps text to the given width, paragraph by paragraph.
// Paragraphs are separated by blank lines in the input and become
// consecutive wrapped blocks in the output.
func WrapParas(text string, width int) []string {
	if width < 1 {
		width = 1
	}
	var out []string
	for _, para := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if DisplayWidth(line)+1+DisplayWidth(w) <= width {
				line += " " + w
			} else {
				out = append(out, line)
				line = w
			}
		}
		out = append(out, line)
	}
	return out
}

// Center pads text with leading spaces so it is centered in a field of the
// given width. Text wider than the field is returned unchanged.
func Center(text string, width int) string {
	pad := (width - DisplayWidth(text)) / 2
	if pad <= 0 {
		return text
	}
	return strings.Repeat(" ", pad) + text
}
