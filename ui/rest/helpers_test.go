package rest

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/AzielCF/az-messenger/pkg/utils"
	"github.com/AzielCF/az-messenger/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func newTestApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.Recovery())
	return app
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func decodeEnvelope(t *testing.T, body []byte) utils.ResponseData {
	t.Helper()
	var res utils.ResponseData
	require.NoError(t, json.Unmarshal(body, &res))
	return res
}
