package formsync_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/forms"
	"github.com/phrazzld/formrelay/internal/formsync"
	"github.com/phrazzld/formrelay/internal/mocks"
	"github.com/phrazzld/formrelay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSyncer(t *testing.T, records store.ExternalRecordStore) *formsync.Syncer {
	t.Helper()
	s, err := formsync.NewSyncer(records, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func mustBlueprint(t *testing.T, payload string) *domain.Blueprint {
	t.Helper()
	bp, err := domain.ParseBlueprint([]byte(payload))
	require.NoError(t, err)
	return bp
}

func TestSync_CreatesFormWithSupportedFieldsOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	records := mocks.NewMockExternalRecordStore()
	fake := forms.NewFake()
	conv := uuid.New()

	bp := mustBlueprint(t, `{"title":"Test","fields":[{"type":"text"},{"type":"file"}]}`)
	res, err := newSyncer(t, records).Sync(ctx, conv, bp, fake)
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.NotEmpty(t, res.ExternalID)
	assert.NotEmpty(t, res.URL)
	assert.Equal(t, []string{"file field skipped"}, res.Warnings)

	form, ok := fake.Form(res.ExternalID)
	require.True(t, ok)
	require.Len(t, form.Items, 1)
	assert.Equal(t, "Question", form.Items[0].Title)

	rec, err := records.GetByConversation(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, res.ExternalID, rec.ExternalID)
	assert.Equal(t, res.URL, rec.AccessURL)
}

func TestSync_OneUnsupportedAmongTwoSupported(t *testing.T) {
	t.Parallel()
	fake := forms.NewFake()

	bp := mustBlueprint(t, `{"title":"Apply","fields":[
		{"type":"text","label":"Name"},
		{"type":"file","label":"CV"},
		{"type":"email","label":"Email"}
	]}`)
	res, err := newSyncer(t, mocks.NewMockExternalRecordStore()).Sync(context.Background(), uuid.New(), bp, fake)
	require.NoError(t, err)

	assert.Len(t, res.Warnings, 1)
	form, _ := fake.Form(res.ExternalID)
	require.Len(t, form.Items, 2)
	assert.Equal(t, "Name", form.Items[0].Title)
	assert.Equal(t, "Email", form.Items[1].Title)
}

func TestSync_IsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	records := mocks.NewMockExternalRecordStore()
	fake := forms.NewFake()
	syncer := newSyncer(t, records)
	conv := uuid.New()

	bp := mustBlueprint(t, `{"title":"Survey","description":"d","fields":[
		{"type":"radio","label":"Color","options":["red","blue"]},
		{"type":"rating","label":"Score"}
	],"settings":{"is_quiz":true}}`)

	first, err := syncer.Sync(ctx, conv, bp, fake)
	require.NoError(t, err)
	second, err := syncer.Sync(ctx, conv, bp, fake)
	require.NoError(t, err)

	assert.Equal(t, first.ExternalID, second.ExternalID)
	assert.Equal(t, first.URL, second.URL)
	assert.False(t, second.Created)
	assert.Zero(t, second.Operations)

	assert.Equal(t, 1, records.Count())
	assert.Equal(t, 1, fake.Creates())
	assert.Len(t, fake.Batches(), 1, "only the initial population changes the form")
}

func TestSync_UpdatesExistingForm(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	records := mocks.NewMockExternalRecordStore()
	fake := forms.NewFake()
	syncer := newSyncer(t, records)
	conv := uuid.New()

	_, err := syncer.Sync(ctx, conv, mustBlueprint(t, `{"title":"v1","fields":[
		{"type":"text","label":"a"},{"type":"text","label":"b"},{"type":"text","label":"c"}]}`), fake)
	require.NoError(t, err)

	res, err := syncer.Sync(ctx, conv, mustBlueprint(t, `{"title":"v2","fields":[
		{"type":"paragraph","label":"a"},{"type":"text","label":"b"}]}`), fake)
	require.NoError(t, err)

	assert.False(t, res.Created)
	form, _ := fake.Form(res.ExternalID)
	assert.Equal(t, "v2", form.Title)
	require.Len(t, form.Items, 2)
	assert.Equal(t, forms.KindLongText, form.Items[0].Kind)
	assert.Equal(t, "b", form.Items[1].Title)
	assert.Equal(t, 1, records.Touches())
}

func TestSync_RaceLoserUpdatesWinnersForm(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := forms.NewFake()
	conv := uuid.New()

	winnerID, err := fake.Create(ctx, "Survey", "")
	require.NoError(t, err)
	winner, err := domain.NewExternalRecord(conv, winnerID, "https://forms.example/winner")
	require.NoError(t, err)

	records := mocks.NewMockExternalRecordStore()
	lookups := 0
	records.GetByConversationFn = func(_ context.Context, id uuid.UUID) (*domain.ExternalRecord, error) {
		lookups++
		if lookups == 1 {
			// The winner has not committed yet when this sync starts.
			return nil, store.ErrExternalRecordNotFound
		}
		return winner, nil
	}
	records.Put(*winner)

	res, err := newSyncer(t, records).Sync(ctx, conv,
		mustBlueprint(t, `{"title":"Survey","fields":[{"type":"text","label":"a"}]}`), fake)
	require.NoError(t, err)

	assert.Equal(t, winnerID, res.ExternalID)
	assert.False(t, res.Created)
	winnerForm, _ := fake.Form(winnerID)
	assert.Len(t, winnerForm.Items, 1)
	assert.Equal(t, 1, records.Count())
}

func TestSync_PropagatesClientErrorCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		err    error
		want   error
	}{
		{"rate limited on create", forms.MethodCreate, domain.NewTransientError("429", nil), domain.ErrTransient},
		{"token rejected on apply", forms.MethodApply, domain.NewAuthError("401", nil), domain.ErrAuth},
		{"bad request on read", forms.MethodRead, domain.NewValidationError("400", nil), domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fake := forms.NewFake()
			fake.FailNext(tt.method, tt.err)
			records := mocks.NewMockExternalRecordStore()

			_, err := newSyncer(t, records).Sync(context.Background(), uuid.New(),
				mustBlueprint(t, `{"title":"T","fields":[{"type":"text"}]}`), fake)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, records.Count())
		})
	}
}

func TestSync_StoreOutageIsTransient(t *testing.T) {
	t.Parallel()
	records := mocks.NewMockExternalRecordStore()
	records.GetByConversationFn = func(context.Context, uuid.UUID) (*domain.ExternalRecord, error) {
		return nil, errors.New("connection refused")
	}

	_, err := newSyncer(t, records).Sync(context.Background(), uuid.New(),
		&domain.Blueprint{Title: "T"}, forms.NewFake())
	assert.ErrorIs(t, err, domain.ErrTransient)
}
