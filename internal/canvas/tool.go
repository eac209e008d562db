package canvas

import (
	"fmt"
	"image/color"
	"strings"

	"gridfill/pkg/colorutil"
)

// Tool represents the current annotation tool.
type Tool int

const (
	ToolDraw Tool = iota
	ToolErase
	ToolText
)

func (t Tool) String() string {
	switch t {
	case ToolDraw:
		return "draw"
	case ToolErase:
		return "erase"
	case ToolText:
		return "text"
	default:
		return "unknown"
	}
}

// ParseTool parses a tool name.
func ParseTool(s string) (Tool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "draw", "pen", "brush":
		return ToolDraw, nil
	case "erase", "eraser":
		return ToolErase, nil
	case "text":
		return ToolText, nil
	default:
		return ToolDraw, fmt.Errorf("unknown tool %q", s)
	}
}

// Style holds the active tool settings.
type Style struct {
	Color        color.Color
	Width        float64 // pen width in pixels
	EraserRadius float64 // eraser radius in pixels
	FontSize     float64 // text size in pixels
}

// DefaultStyle returns a black 3px pen, a 12px eraser and 24px text.
func DefaultStyle() Style {
	return Style{
		Color:        colorutil.Black,
		Width:        3,
		EraserRadius: 12,
		FontSize:     24,
	}
}
