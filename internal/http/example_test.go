package http_test

import (
	"fmt"

	httpserver "github.com/fyrsmithlabs/fixdesk/internal/http"
	"github.com/fyrsmithlabs/fixdesk/internal/errs"
)

// ExampleStatusFor shows how service errors surface as HTTP statuses.
func ExampleStatusFor() {
	err := errs.Validation("session.create", "user id is required")
	fmt.Println(httpserver.StatusFor(errs.KindOf(err)))
	fmt.Println(httpserver.StatusFor(errs.KindPersistenceFailed))
	// Output:
	// 400
	// 503
}
