package chart

import "fmt"

// InsufficientDataError means the baseline window holds fewer measurements
// than required to establish control statistics.
type InsufficientDataError struct {
	Required int
	Found    int
}

func (e InsufficientDataError) Error() string {
	return fmt.Sprintf("baseline requires %d measurements, found %d", e.Required, e.Found)
}

// MalformedMeasurementError means a measurement cell could not be used as a
// number.  Raw carries the original cell content; it is empty when the cell
// itself was empty.
type MalformedMeasurementError struct {
	Row int
	Raw string
}

func (e MalformedMeasurementError) Error() string {
	switch e.Raw {
	case "":
		return fmt.Sprintf("measurement at row %d is empty", e.Row)
	default:
		return fmt.Sprintf("measurement at row %d is not numeric: %q", e.Row, e.Raw)
	}
}
