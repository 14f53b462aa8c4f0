package xmr

import (
	"os"

	"github.com/stvp/rollbar"
)

// ErrorReporter batches unexpected errors in the client and sends them to an
// external crash reporting service to improve the quality of the client
type ErrorReporter interface {
	ReportError(err error)
}

type errorService struct{}

// ReportError will send the result of an unexpected error to Rollbar.  Data
// is anonymous and consists only of a stack trace to identify the source of
// the problem.
func (e errorService) ReportError(err error) {
	rollbar.Error(rollbar.ERR, err)
}

type noopReporter struct{}

func (e noopReporter) ReportError(err error) {}

// newErrorReporter wires up Rollbar when a token is present and reporting has
// not been suppressed by config or by setting XMR_NO_ERROR_REPORTS.
func newErrorReporter(c Config) ErrorReporter {
	token := os.Getenv("XMR_ROLLBAR_TOKEN")
	switch {
	case c.NoErrorReports, token == "", os.Getenv("XMR_NO_ERROR_REPORTS") != "":
		return noopReporter{}
	default:
		rollbar.Token = token
		switch env := os.Getenv("XMR_ENVIRONMENT"); env {
		case "":
			rollbar.Environment = "production"
		default:
			rollbar.Environment = env
		}
		return errorService{}
	}
}
