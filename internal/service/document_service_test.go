package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"docchat-be/internal/dto"
	"docchat-be/internal/entity"
	"docchat-be/internal/repository/specification"
	"docchat-be/pkg/rag"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocRepo struct{ store *memStore }

func (r *fakeDocRepo) Create(_ context.Context, doc *entity.Document) error {
	cp := *doc
	r.store.docs[doc.Id] = &cp
	return nil
}

func (r *fakeDocRepo) Update(_ context.Context, doc *entity.Document) error {
	cp := *doc
	r.store.docs[doc.Id] = &cp
	return nil
}

func (r *fakeDocRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.store.docs, id)
	return nil
}

func (r *fakeDocRepo) FindOne(_ context.Context, specs ...specification.Specification) (*entity.Document, error) {
	var id, owner *uuid.UUID
	for _, s := range specs {
		switch v := s.(type) {
		case specification.ByID:
			vid := v.ID
			id = &vid
		case specification.OwnedBy:
			vuid := v.UserID
			owner = &vuid
		}
	}
	if id == nil {
		return nil, nil
	}
	doc, ok := r.store.docs[*id]
	if !ok {
		return nil, nil
	}
	if owner != nil && doc.UserId != *owner {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (r *fakeDocRepo) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.Document, error) {
	var owner *uuid.UUID
	for _, s := range specs {
		if v, ok := s.(specification.OwnedBy); ok {
			vuid := v.UserID
			owner = &vuid
		}
	}
	var out []*entity.Document
	for _, doc := range r.store.docs {
		if owner != nil && doc.UserId != *owner {
			continue
		}
		cp := *doc
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeDocRepo) Count(context.Context, ...specification.Specification) (int64, error) {
	return int64(len(r.store.docs)), nil
}

type capturingPublisher struct {
	payloads [][]byte
}

func (p *capturingPublisher) Publish(_ context.Context, payload []byte) error {
	p.payloads = append(p.payloads, payload)
	return nil
}

func newDocHarness() (IDocumentService, *memStore, *capturingPublisher) {
	store := newMemStore()
	pub := &capturingPublisher{}
	svc := NewDocumentService(&fakeFactory{store: store}, pub, noopLogger{})
	return svc, store, pub
}

func TestDocumentCreateEnqueuesEmbedding(t *testing.T) {
	svc, store, pub := newDocHarness()
	userId := uuid.New()

	res, err := svc.Create(context.Background(), userId, &dto.CreateDocumentRequest{
		Title:   "Returns FAQ",
		Content: "Items can be returned within 30 days.",
	})
	require.NoError(t, err)

	doc, ok := store.docs[res.Id]
	require.True(t, ok)
	assert.Equal(t, userId, doc.UserId)

	require.Len(t, pub.payloads, 1, "creation must enqueue exactly one embed job")
	var msg dto.PublishEmbedDocumentMessage
	require.NoError(t, json.Unmarshal(pub.payloads[0], &msg))
	assert.Equal(t, res.Id, msg.DocumentId)
}

func TestDocumentUpdateReindexesContent(t *testing.T) {
	svc, store, pub := newDocHarness()
	userId := uuid.New()
	docId := uuid.New()
	store.docs[docId] = &entity.Document{Id: docId, UserId: userId, Title: "Old", Content: "old", CreatedAt: time.Now()}

	_, err := svc.Update(context.Background(), userId, &dto.UpdateDocumentRequest{
		Id:      docId,
		Title:   "New",
		Content: "new content",
	})
	require.NoError(t, err)

	assert.Equal(t, "New", store.docs[docId].Title)
	assert.Equal(t, "new content", store.docs[docId].Content)
	assert.Len(t, pub.payloads, 1, "update must requeue the document")
}

func TestDocumentUpdateForeignOwnerRejected(t *testing.T) {
	svc, store, pub := newDocHarness()
	owner := uuid.New()
	docId := uuid.New()
	store.docs[docId] = &entity.Document{Id: docId, UserId: owner, Title: "Private"}

	_, err := svc.Update(context.Background(), uuid.New(), &dto.UpdateDocumentRequest{
		Id:      docId,
		Title:   "Hijack",
		Content: "x",
	})
	assert.ErrorIs(t, err, rag.ErrDocumentNotFound)
	assert.Equal(t, "Private", store.docs[docId].Title)
	assert.Empty(t, pub.payloads)
}

func TestDocumentDeleteRemovesChunksToo(t *testing.T) {
	svc, store, _ := newDocHarness()
	userId := uuid.New()
	docId := uuid.New()
	store.docs[docId] = &entity.Document{Id: docId, UserId: userId}

	require.NoError(t, svc.Delete(context.Background(), userId, docId))

	assert.NotContains(t, store.docs, docId)
	assert.Contains(t, store.chunkDeletes, docId, "chunks must be purged with the document")
}
