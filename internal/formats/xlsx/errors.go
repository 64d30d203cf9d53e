package xlsx

import "fmt"

// SheetNotFoundError is returned when a workbook has no sheet with the
// layout's exact name.
type SheetNotFoundError struct {
	Path      string
	Sheet     string
	Available []string
}

func (e *SheetNotFoundError) Error() string {
	return fmt.Sprintf("sheet %q not found in %s — available sheets: %v", e.Sheet, e.Path, e.Available)
}

// LayoutError is returned when a sheet does not match the physical layout
// its descriptor declares.
type LayoutError struct {
	Sheet  string
	Reason string
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("sheet %q does not match its layout: %s", e.Sheet, e.Reason)
}

func layoutErrorf(sheet, format string, args ...any) *LayoutError {
	return &LayoutError{Sheet: sheet, Reason: fmt.Sprintf(format, args...)}
}
