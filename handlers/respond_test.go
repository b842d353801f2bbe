package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"progress-ledger/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorStatuses(t *testing.T) {
	cases := []struct {
		err        error
		status     int
		retryAfter bool
	}{
		{services.NewError(services.CodeInvalidInput, "op", "bad"), http.StatusBadRequest, false},
		{services.NewError(services.CodeNotFound, "op", "missing"), http.StatusNotFound, false},
		{services.NewError(services.CodeConflict, "op", "busy"), http.StatusConflict, false},
		{services.NewError(services.CodeTimeout, "op", "slow"), http.StatusServiceUnavailable, true},
		{services.Wrap(services.CodeStorageFailure, "op", "db down", errors.New("dial tcp")), http.StatusInternalServerError, false},
		{errors.New("raw"), http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		app := fiber.New()
		err := tc.err
		app.Get("/", func(c *fiber.Ctx) error { return respondError(c, err) })

		resp, rerr := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
		require.NoError(t, rerr)
		assert.Equal(t, tc.status, resp.StatusCode, tc.err.Error())
		assert.Equal(t, tc.retryAfter, resp.Header.Get(fiber.HeaderRetryAfter) != "", tc.err.Error())
	}
}
