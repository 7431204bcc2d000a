package logging

import "strings"

// FormatSubject builds the "Item #N (stage)" subject shown in console output.
func FormatSubject(itemID, stage string) string {
	itemID = strings.TrimSpace(itemID)
	stage = strings.TrimSpace(stage)
	switch {
	case itemID != "" && stage != "":
		return "Item #" + itemID + " (" + stage + ")"
	case itemID != "":
		return "Item #" + itemID
	default:
		return stage
	}
}
