package pulse

// Theme defines semantic color mappings using ANSI color indices (0-15).
// The user's terminal theme determines the actual RGB values, so the app
// automatically matches any color scheme.
type Theme struct {
	UserMsg int // User message accent
	Status  int // Progress status text
	Error   int // Error messages
	Success int // Success indicators
	Muted   int // Status bar, placeholders
	Table   int // Table headers
	Chart   int // Chart bars
	Accent  int // Headings, links
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		UserMsg: 4,
		Status:  8,
		Error:   1,
		Success: 2,
		Muted:   8,
		Table:   6,
		Chart:   2,
		Accent:  5,
	}
}
