package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func TestCreateAndGetDocument(t *testing.T) {
	st := OpenMemory(t)
	ctx := context.Background()

	recipients := []Recipient{
		{Email: "alice@example.com", Name: "Alice", Order: 1},
		{Email: "bob@example.com", Name: "Bob", Order: 2},
	}
	doc, err := st.CreateDocument(ctx, "msa.docx", "/tmp/msa.docx", recipients)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, StatusProcessed, doc.Status)

	got, err := st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, recipients, got.Recipients)
	assert.Empty(t, got.Metadata)
}

func TestGetDocumentAbsent(t *testing.T) {
	st := OpenMemory(t)
	got, err := st.GetDocument(context.Background(), "doc_missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateStatus(t *testing.T) {
	st := OpenMemory(t)
	ctx := context.Background()

	doc, err := st.CreateDocument(ctx, "a.docx", "", nil)
	require.NoError(t, err)

	require.NoError(t, st.UpdateStatus(ctx, doc.ID, StatusSentForSignature))
	got, err := st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSentForSignature, got.Status)

	assert.Error(t, st.UpdateStatus(ctx, "doc_missing", StatusProcessed))
}

func TestMergeMetadataPreservesExistingKeys(t *testing.T) {
	st := OpenMemory(t)
	ctx := context.Background()

	doc, err := st.CreateDocument(ctx, "a.docx", "", nil)
	require.NoError(t, err)

	require.NoError(t, st.MergeMetadata(ctx, doc.ID, map[string]string{MetaSendRequestID: "sub_1"}))
	require.NoError(t, st.MergeMetadata(ctx, doc.ID, map[string]string{MetaAgreementID: "agr_9"}))

	got, err := st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "sub_1", got.Metadata[MetaSendRequestID])
	assert.Equal(t, "agr_9", got.Metadata[MetaAgreementID])
}

func TestSubmissionEvents(t *testing.T) {
	st := OpenMemory(t)
	ctx := context.Background()

	doc, err := st.CreateDocument(ctx, "a.docx", "", nil)
	require.NoError(t, err)

	st.RecordEvent(ctx, SubmissionEvent{DocumentID: doc.ID, RequestID: "sub_1", Action: "send", Outcome: "ambiguous"})
	st.RecordEvent(ctx, SubmissionEvent{DocumentID: doc.ID, RequestID: "sub_1", Action: "verify", Outcome: "confirmed", Success: true})

	events, err := st.EventsFor(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "send", events[0].Action)
	assert.Equal(t, "verify", events[1].Action)
	// Both retries of one logical send share a request ID for correlation.
	assert.Equal(t, events[0].RequestID, events[1].RequestID)
	assert.True(t, events[1].Success)
}
