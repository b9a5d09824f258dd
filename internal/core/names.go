package core

import "strings"

// AbbreviatedName reduces a full client name to first plus last name for
// compact display.
func AbbreviatedName(fullName string) string {
	parts := strings.Fields(fullName)
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return parts[0] + " " + parts[len(parts)-1]
	}
}

// TruncateDisplayName shortens a name to max runes, appending an ellipsis
// when it was cut. Used for purchase items on calendar cells.
func TruncateDisplayName(name string, max int) string {
	runes := []rune(name)
	if len(runes) <= max {
		return name
	}
	return string(runes[:max]) + "..."
}
