package googleforms

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/phrazzld/formrelay/internal/domain"
	"google.golang.org/api/googleapi"
)

// classify maps an API failure to the domain error taxonomy.
//
// HTTP 429 and 5xx are transient, 401 and 403 are auth failures, 400 and
// 404 mean the request cannot succeed as written. Network errors and
// deadlines are transient. Anything else is treated as transient so the
// retry budget, not this client, decides when to give up.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		msg := fmt.Sprintf("forms %s: HTTP %d: %s", op, apiErr.Code, apiErr.Message)
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return domain.NewTransientError(msg, err)
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return domain.NewAuthError(msg, err)
		case apiErr.Code == http.StatusBadRequest || apiErr.Code == http.StatusNotFound:
			return domain.NewValidationError(msg, err)
		default:
			return domain.NewTransientError(msg, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewTransientError(fmt.Sprintf("forms %s: network error", op), err)
	}
	if errors.Is(err, context.Canceled) {
		return domain.NewTransientError(fmt.Sprintf("forms %s: canceled", op), err)
	}
	return domain.NewTransientError(fmt.Sprintf("forms %s failed", op), err)
}
