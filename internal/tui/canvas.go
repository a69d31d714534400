package tui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/sjawhar/parlo/internal/visual"
)

var blocks = []rune(" ▁▂▃▄▅▆▇█")

// Canvas is a terminal-cell drawing surface for the visualizer. One cell is
// one unit of geometry. Draw stores the latest frame; Render turns it into
// block characters on the UI goroutine.
type Canvas struct {
	mu     sync.Mutex
	width  int
	height int
	levels []byte
	marker int
	mode   visual.Mode

	bar    lipgloss.Style
	cursor lipgloss.Style
}

func NewCanvas(width, height int) *Canvas {
	return &Canvas{
		width:  width,
		height: height,
		marker: -1,
		bar:    lipgloss.NewStyle().Foreground(lipgloss.Color("#01cdfe")),
		cursor: lipgloss.NewStyle().Foreground(lipgloss.Color("#ff71ce")).Bold(true),
	}
}

func (c *Canvas) SetSize(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width = max(width, 0)
	c.height = max(height, 1)
}

func (c *Canvas) Geometry() visual.Geometry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return visual.Geometry{Width: float64(c.width), Height: float64(c.height), DPR: 1}
}

// Draw copies the frame; the visualizer reuses its level buffer.
func (c *Canvas) Draw(f visual.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = f.Mode
	c.levels = append(c.levels[:0], f.Levels...)
	c.marker = -1
	if f.Marker != nil {
		c.marker = int(f.Marker.X)
	}
}

func (c *Canvas) Mode() visual.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Canvas) Render() string {
	c.mu.Lock()
	width, height := c.width, c.height
	levels := append([]byte(nil), c.levels...)
	marker := c.marker
	c.mu.Unlock()

	if width <= 0 {
		return ""
	}
	if len(levels) == 0 {
		return strings.TrimRight(strings.Repeat(strings.Repeat(" ", width)+"\n", height), "\n")
	}
	if marker >= width {
		marker = width - 1
	}

	// Eighths of a cell filled per column.
	fill := make([]int, width)
	for col := range fill {
		level := levels[col*len(levels)/width]
		fill[col] = int(level) * height * 8 / 255
	}

	rows := make([]string, height)
	for r := range rows {
		base := (height - 1 - r) * 8
		var line strings.Builder
		for col := 0; col < width; col++ {
			if col == marker {
				line.WriteString(c.cursor.Render("┃"))
				continue
			}
			n := min(max(fill[col]-base, 0), 8)
			line.WriteString(c.bar.Render(string(blocks[n])))
		}
		rows[r] = line.String()
	}
	return strings.Join(rows, "\n")
}
