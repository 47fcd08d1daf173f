package application_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/chargegw/internal/application"
	"github.com/ericfisherdev/chargegw/internal/domain/model"
)

type chargerFixture struct {
	svc     *application.ChargerService
	session *sessionFixture
	vendor  *fakeVendor
}

func newChargerFixture(t *testing.T) *chargerFixture {
	t.Helper()
	sf := newSessionFixture(t)
	vendor := &fakeVendor{}
	svc := application.NewChargerService(sf.mgr, vendor, "CH-1", "EVSE-1", slog.Default())
	return &chargerFixture{svc: svc, session: sf, vendor: vendor}
}

func TestChargerStatus_ReusesToken(t *testing.T) {
	f := newChargerFixture(t)
	ctx := context.Background()

	first, err := f.svc.Status(ctx)
	require.NoError(t, err)
	second, err := f.svc.Status(ctx)
	require.NoError(t, err)

	assert.JSONEq(t, `{"id":"CH-1","status":"AVAILABLE"}`, string(first))
	assert.JSONEq(t, string(first), string(second))
	assert.Equal(t, []string{"tok-1", "tok-1"}, f.vendor.tokens)
	assert.Equal(t, int32(1), f.session.auth.calls.Load())
}

func TestChargerStatus_RejectedTokenForcesLogin(t *testing.T) {
	f := newChargerFixture(t)
	ctx := context.Background()

	f.vendor.statusErr = &model.VendorError{Operation: "charger_status", StatusCode: http.StatusUnauthorized, Body: "expired"}

	_, err := f.svc.Status(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUnauthorized)
	assert.Nil(t, f.session.store.get(), "rejected token is cleared")

	f.vendor.statusErr = nil
	_, err = f.svc.Status(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"tok-1", "tok-2"}, f.vendor.tokens)
	assert.Equal(t, int32(2), f.session.auth.calls.Load())
}

func TestChargerStatus_OtherVendorErrorKeepsToken(t *testing.T) {
	f := newChargerFixture(t)
	ctx := context.Background()

	f.vendor.statusErr = &model.VendorError{Operation: "charger_status", StatusCode: http.StatusBadGateway}
	_, err := f.svc.Status(ctx)
	require.Error(t, err)

	f.vendor.statusErr = nil
	_, err = f.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.session.auth.calls.Load())
}

func TestChargerStatus_LoginFailure(t *testing.T) {
	f := newChargerFixture(t)
	f.session.auth.err = model.NewAuthError(model.AuthTimeout, context.DeadlineExceeded)

	_, err := f.svc.Status(context.Background())

	var authErr *model.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, model.AuthTimeout, authErr.Kind)
	assert.Empty(t, f.vendor.tokens, "vendor is not called without a token")
}

func TestChargerStart_UsesEVSE(t *testing.T) {
	f := newChargerFixture(t)

	out, err := f.svc.Start(context.Background())

	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"STARTING"}`, string(out))
	assert.Equal(t, []string{"EVSE-1"}, f.vendor.startedOn)
}

func TestChargerStop_StopsActiveSession(t *testing.T) {
	f := newChargerFixture(t)
	f.vendor.active = &model.ChargingSession{ID: "S-42", EVSEID: "EVSE-1", StartedAt: testStart.Add(-time.Hour)}

	out, err := f.svc.Stop(context.Background())

	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"STOPPING"}`, string(out))
	assert.Equal(t, []string{"S-42"}, f.vendor.stoppedIDs)
}

func TestChargerStop_NoActiveSession(t *testing.T) {
	f := newChargerFixture(t)
	f.vendor.activeErr = model.ErrNoActiveSession

	_, err := f.svc.Stop(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNoActiveSession))
	assert.Empty(t, f.vendor.stoppedIDs)
}
