package call

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ProductBay/vynce/internal/callstore"
	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/events"
	"github.com/ProductBay/vynce/internal/phone"
	"github.com/ProductBay/vynce/internal/telephony/mock"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
)

type staticCallerID string

func (s staticCallerID) CallerID() string { return string(s) }

func newTestService(cfg mock.Config) (*Service, *callstore.Store, *mock.Provider, *events.Recorder) {
	rec := &events.Recorder{}
	store := callstore.New(rec, nil)
	provider := mock.NewProvider(cfg)
	svc := NewService(store, provider, staticCallerID("+18005550100"), Callbacks{
		StatusURL: "https://dialer.example/webhooks/status",
		AnswerURL: "https://dialer.example/webhooks/answer",
	}, nil, nil)
	return svc, store, provider, rec
}

func TestInitiateCallHappyPath(t *testing.T) {
	svc, store, provider, rec := newTestService(mock.Config{})

	call, err := svc.InitiateCall(context.Background(), InitiateCallInput{
		Number:   "(555) 123-4567",
		Metadata: map[string]any{"name": "Alex"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusInitiated, call.Status)
	assert.Equal(t, "call-1", call.RemoteID)
	assert.Equal(t, "+15551234567", call.Number)
	assert.Equal(t, domain.CallTypeSingle, call.Type)

	placed := provider.Placed()
	require.Len(t, placed, 1)
	assert.Equal(t, "+15551234567", placed[0].To)
	assert.Equal(t, "+18005550100", placed[0].From)
	assert.Equal(t, "https://dialer.example/webhooks/status", placed[0].StatusURL)

	require.NotNil(t, store.FindByRemoteID("call-1"))

	updates := rec.Named(events.CallUpdate)
	require.Len(t, updates, 2)
	assert.Equal(t, domain.CallStatusDialing, updates[0].(*domain.Call).Status)
	assert.Equal(t, domain.CallStatusInitiated, updates[1].(*domain.Call).Status)
}

func TestInitiateCallPlacementFailure(t *testing.T) {
	rejection := errors.New("401 unauthorized")
	svc, _, _, _ := newTestService(mock.Config{Failures: map[string]error{
		"+15551234567": rejection,
	}})

	call, err := svc.InitiateCall(context.Background(), InitiateCallInput{Number: "5551234567"})
	require.ErrorIs(t, err, rejection)
	require.NotNil(t, call)
	assert.Equal(t, domain.CallStatusFailed, call.Status)
	assert.Contains(t, call.Error, "401 unauthorized")
	assert.NotNil(t, call.EndedAt)
	assert.Empty(t, call.RemoteID)
}

func TestInitiateCallRejectsAmbiguousNumber(t *testing.T) {
	svc, store, provider, _ := newTestService(mock.Config{})

	call, err := svc.InitiateCall(context.Background(), InitiateCallInput{Number: "bad-number", Type: domain.CallTypeBulk})
	require.ErrorIs(t, err, phone.ErrAmbiguousNumber)
	require.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, domain.CallStatusFailed, call.Status)
	assert.Equal(t, "bad-number", call.Number)
	assert.Empty(t, provider.Placed())
	assert.Equal(t, 1, store.Len())
}

func TestEndCallHangsUpAndFreezes(t *testing.T) {
	svc, _, provider, rec := newTestService(mock.Config{})
	call, err := svc.InitiateCall(context.Background(), InitiateCallInput{Number: "+442079460958"})
	require.NoError(t, err)

	ended, err := svc.EndCall(context.Background(), call.LocalID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusEnded, ended.Status)
	assert.Equal(t, "admin", ended.EndedBy)
	assert.Equal(t, []string{call.RemoteID}, provider.Hangups())
	require.Len(t, rec.Named(events.CallEnded), 1)

	again, err := svc.EndCall(context.Background(), call.LocalID)
	require.NoError(t, err)
	assert.Equal(t, *ended.EndedAt, *again.EndedAt)
	assert.Len(t, provider.Hangups(), 1)
}

func TestEndCallUnknown(t *testing.T) {
	svc, _, _, _ := newTestService(mock.Config{})
	_, err := svc.EndCall(context.Background(), "local-missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestNotesAndOutcome(t *testing.T) {
	svc, _, _, _ := newTestService(mock.Config{})
	call, err := svc.InitiateCall(context.Background(), InitiateCallInput{Number: "5551234567"})
	require.NoError(t, err)

	_, err = svc.AddNote(call.LocalID, "  ", "ops")
	require.ErrorIs(t, err, apperrors.ErrValidation)

	noted, err := svc.AddNote(call.LocalID, "asked for a callback", "ops@example.com")
	require.NoError(t, err)
	require.Len(t, noted.Notes, 1)
	assert.Equal(t, "ops@example.com", noted.Notes[0].Author)

	withOutcome, err := svc.SetOutcome(call.LocalID, "interested")
	require.NoError(t, err)
	assert.Equal(t, "interested", withOutcome.Outcome)
	assert.Len(t, withOutcome.Notes, 1)
}
