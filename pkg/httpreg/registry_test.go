package httpreg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthd/hearthd/pkg/kernel/errs"
)

func TestRegistry_RegisterAndList(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Endpoint{Method: "get", Path: "/devices", Service: "devices.list"}))

	eps := r.List()
	require.Len(t, eps, 1)
	assert.Equal(t, "GET", eps[0].Method)
	assert.Equal(t, "/devices", eps[0].Path)
}

func TestRegistry_TrailingSlashNormalized(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Endpoint{Method: "GET", Path: "/devices/", Service: "devices.list"}))
	assert.Equal(t, "/devices", r.List()[0].Path)
}

func TestRegistry_RootPathKept(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Endpoint{Method: "GET", Path: "/", Service: "home.index"}))
	assert.Equal(t, "/", r.List()[0].Path)
}

func TestRegistry_VersionPrefixesPath(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Endpoint{Method: "GET", Path: "/devices", Service: "devices.list", Version: "2"}))
	assert.Equal(t, "/v2/devices", r.List()[0].Path)

	require.NoError(t, r.Register(Endpoint{Method: "GET", Path: "/scenes", Service: "scenes.list", Version: "v1"}))
	assert.Equal(t, "/v1/scenes", r.List()[1].Path)
}

func TestRegistry_DuplicateMethodPathRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Endpoint{Method: "GET", Path: "/devices", Service: "devices.list"}))

	err := r.Register(Endpoint{Method: "GET", Path: "/devices/", Service: "other.list"})
	assert.ErrorIs(t, err, errs.ErrConflict)

	// Same path under a different method is fine.
	assert.NoError(t, r.Register(Endpoint{Method: "POST", Path: "/devices", Service: "devices.create"}))
}

func TestRegistry_Validation(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Register(Endpoint{Path: "/x", Service: "s"}), errs.ErrInvalidInput)
	assert.ErrorIs(t, r.Register(Endpoint{Method: "GET", Path: "x", Service: "s"}), errs.ErrInvalidInput)
	assert.ErrorIs(t, r.Register(Endpoint{Method: "GET", Path: "/x"}), errs.ErrInvalidInput)
}

func TestRegistry_ClearByPluginOwner(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Endpoint{Method: "GET", Path: "/devices", Service: "devices.list"}))
	require.NoError(t, r.Register(Endpoint{Method: "GET", Path: "/presence", Service: "presence.status"}))

	r.Clear("devices")
	eps := r.List()
	require.Len(t, eps, 1)
	assert.Equal(t, "presence.status", eps[0].Service)
}

func TestRegistry_ClearAll(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Endpoint{Method: "GET", Path: "/devices", Service: "devices.list"}))
	r.Clear("")
	assert.Zero(t, r.Len())
}

func TestRegistry_Deprecation(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Endpoint{Method: "GET", Path: "/devices", Service: "devices.list", Version: "1"}))

	assert.False(t, r.IsDeprecated("devices.list", ""))
	require.NoError(t, r.MarkDeprecated("devices.list", ""))
	assert.True(t, r.IsDeprecated("devices.list", ""))

	assert.ErrorIs(t, r.MarkDeprecated("nope", ""), errs.ErrNotFound)
}

func TestRegistry_Versions(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Endpoint{Method: "GET", Path: "/devices", Service: "devices.list", Version: "1"}))
	require.NoError(t, r.Register(Endpoint{Method: "GET", Path: "/devices", Service: "devices.list", Version: "2"}))

	assert.Equal(t, []string{"1", "2"}, r.Versions("devices.list"))
}

func TestRegistry_OpenAPIDocument(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Endpoint{
		Method:      "GET",
		Path:        "/devices/{id}",
		Service:     "devices.get",
		Description: "Fetch one device",
	}))

	doc := r.OpenAPIDocument("hearthd", "1.0.0")
	assert.Equal(t, "3.0.3", doc["openapi"])

	paths := doc["paths"].(map[string]any)
	item, ok := paths["/devices/{id}"].(map[string]any)
	require.True(t, ok)

	op := item["get"].(map[string]any)
	assert.Equal(t, "devices.get", op["operationId"])

	params := op["parameters"].([]map[string]any)
	require.Len(t, params, 1)
	assert.Equal(t, "id", params[0]["name"])
}
