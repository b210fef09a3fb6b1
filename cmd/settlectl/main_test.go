package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/tripsettle/internal/lock"
	"github.com/mmynk/tripsettle/internal/metrics"
	"github.com/mmynk/tripsettle/internal/middleware"
	"github.com/mmynk/tripsettle/internal/service"
	"github.com/mmynk/tripsettle/internal/settlement"
	"github.com/mmynk/tripsettle/internal/storage/sqlite"
	"github.com/mmynk/tripsettle/pkg/api"
	"github.com/mmynk/tripsettle/pkg/api/apiconnect"
)

func startServer(t *testing.T) string {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "cli.db"))
	require.NoError(t, err)

	m := metrics.Discard()
	engine := settlement.NewEngine(store, lock.NewKeyedMutex(), m, settlement.Options{})
	interceptors := connect.WithInterceptors(middleware.LoggingInterceptor(m))

	mux := http.NewServeMux()
	mux.Handle(apiconnect.NewSettlementServiceHandler(
		service.NewSettlementService(engine, service.DefaultRetryPolicy()), interceptors))
	mux.Handle(apiconnect.NewTripServiceHandler(service.NewTripService(store), interceptors))

	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		store.Close()
	})
	return server.URL
}

// run executes settlectl against url and returns its stdout.
func run(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--server", url}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_SettleUp(t *testing.T) {
	url := startServer(t)

	out, err := run(t, url, "trip", "create", "--json", "--name", "Lisbon", "--currency", "eur",
		"--participant", "ana", "--participant", "bo", "--participant", "cy")
	require.NoError(t, err)
	var trip api.Trip
	require.NoError(t, json.Unmarshal([]byte(out), &trip))
	assert.Equal(t, "EUR", trip.BaseCurrency)

	out, err = run(t, url, "expense", "add-equal", trip.ID, "--payer", "ana", "--amount", "30",
		"--description", "dinner", "--participant", "ana", "--participant", "bo", "--participant", "cy")
	require.NoError(t, err)
	assert.Contains(t, out, "ana paid 30 EUR")

	out, err = run(t, url, "show", trip.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "PERSON")
	assert.Contains(t, out, "20.00")

	out, err = run(t, url, "compute", "--json", trip.ID)
	require.NoError(t, err)
	var s api.Settlement
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	require.Len(t, s.Transfers, 2)
	for _, tr := range s.Transfers {
		assert.Equal(t, "ana", tr.ToUserID)
		assert.Equal(t, "10.00", tr.Amount.StringFixed(2))
	}

	out, err = run(t, url, "settle", trip.ID, s.Transfers[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "marked settled")

	out, err = run(t, url, "show", "--json", trip.ID)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	settled := 0
	for _, tr := range s.Transfers {
		if tr.IsSettled {
			settled++
		}
	}
	assert.Equal(t, 1, settled)
}

func TestCLI_Errors(t *testing.T) {
	url := startServer(t)

	_, err := run(t, url, "show", "no-such-trip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_found")

	_, err = run(t, url, "expense", "add-equal", "trip", "--payer", "ana", "--amount", "ten")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid amount")

	_, err = run(t, url, "trip", "create", "--participant", "ana")
	require.Error(t, err, "--name is required")
}
