// pattern: Functional Core

package tui

// Region defines a rectangular area within the terminal.
type Region struct {
	X      int // Left position (0-indexed)
	Y      int // Top position (0-indexed)
	Width  int // Width in cells
	Height int // Height in lines
}

// Layout holds computed regions for all UI components.
type Layout struct {
	Header    Region // App title and backend address
	Status    Region // Stream status, status text, error banner, style
	Sections  Region // Section list (left)
	Images    Region // Filtered image list (right)
	Activity  Region // Recent activity
	Separator Region // Separator above the log panel (1 line when logs open)
	Logs      Region // Log panel when open
	StatusBar Region // Status bar (1 line)
}

// Fixed heights for chrome elements
const (
	headerHeight    = 2 // Title + subtitle
	statusHeight    = 3 // Stream status, error banner, style description
	activityHeight  = 5 // Header + four entries
	statusBarHeight = 1
	separatorHeight = 1

	// sectionsWidthPercent is the share of the width given to the section list.
	sectionsWidthPercent = 30
	minSectionsWidth     = 18
)

// ComputeLayout calculates regions based on terminal dimensions.
// When logPanelOpen is true, the space below the chrome splits 40/60
// between content and logs.
func ComputeLayout(width, height int, logPanelOpen bool) Layout {
	fixedHeight := headerHeight + statusHeight + activityHeight + statusBarHeight
	availableHeight := height - fixedHeight

	// Ensure minimum usable height
	if availableHeight < 4 {
		availableHeight = 4
	}

	var contentHeight, logsHeight int
	if logPanelOpen {
		availableHeight -= separatorHeight
		if availableHeight < 4 {
			availableHeight = 4
		}
		contentHeight = availableHeight * 4 / 10
		if contentHeight < 2 {
			contentHeight = 2
		}
		logsHeight = availableHeight - contentHeight
	} else {
		contentHeight = availableHeight
	}

	sectionsWidth := width * sectionsWidthPercent / 100
	if sectionsWidth < minSectionsWidth {
		sectionsWidth = minSectionsWidth
	}
	if sectionsWidth > width {
		sectionsWidth = width
	}

	y := 0
	header := Region{X: 0, Y: y, Width: width, Height: headerHeight}
	y += headerHeight

	status := Region{X: 0, Y: y, Width: width, Height: statusHeight}
	y += statusHeight

	sections := Region{X: 0, Y: y, Width: sectionsWidth, Height: contentHeight}
	images := Region{X: sectionsWidth, Y: y, Width: width - sectionsWidth, Height: contentHeight}
	y += contentHeight

	activity := Region{X: 0, Y: y, Width: width, Height: activityHeight}
	y += activityHeight

	var separator, logs Region
	if logPanelOpen {
		separator = Region{X: 0, Y: y, Width: width, Height: separatorHeight}
		y += separatorHeight
		logs = Region{X: 0, Y: y, Width: width, Height: logsHeight}
		y += logsHeight
	}

	statusBar := Region{X: 0, Y: y, Width: width, Height: statusBarHeight}

	return Layout{
		Header:    header,
		Status:    status,
		Sections:  sections,
		Images:    images,
		Activity:  activity,
		Separator: separator,
		Logs:      logs,
		StatusBar: statusBar,
	}
}

// ListHeight returns the number of rows available to the section and image
// lists after their one-line panel headers.
func (l Layout) ListHeight() int {
	h := l.Images.Height - 1
	if h < 1 {
		h = 1
	}
	return h
}
