package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/contractlens/backend/internal/apierrors"
	"github.com/contractlens/backend/internal/model"
	"github.com/contractlens/backend/internal/repository"
	"github.com/contractlens/backend/internal/storage"
)

const multipartMemory = 8 << 20

// ObjectStore holds uploaded documents.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	SignedURL(ctx context.Context, key string) (string, time.Time, error)
	Delete(ctx context.Context, key string) error
}

// DocumentHandler stores contract and invoice files in object storage.
type DocumentHandler struct {
	store     ObjectStore
	documents repository.DocumentRepository
	contracts repository.ContractRepository
	invoices  repository.InvoiceRepository
	maxBytes  int64
	logger    *slog.Logger
}

// NewDocumentHandler creates a new DocumentHandler. A nil store disables
// uploads and downloads.
func NewDocumentHandler(store ObjectStore, documents repository.DocumentRepository, contracts repository.ContractRepository, invoices repository.InvoiceRepository, maxUploadMB int64, logger *slog.Logger) *DocumentHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 25
	}
	return &DocumentHandler{
		store:     store,
		documents: documents,
		contracts: contracts,
		invoices:  invoices,
		maxBytes:  maxUploadMB << 20,
		logger:    logger,
	}
}

// Upload handles POST /contracts/{id}/documents (multipart field "file").
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w, r) {
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	contractID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.contracts.GetByID(r.Context(), userID, contractID); err != nil {
		respondErr(w, r, h.logger, "contract", err)
		return
	}

	file, ok := h.readFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	now := time.Now().UTC()
	doc := &model.ContractDocument{
		ID:         uuid.New(),
		UserID:     userID,
		ContractID: contractID,
		Name:       storage.SafeName(file.name),
		Key:        storage.DocumentKey(userID, contractID, file.name, now),
		Size:       file.size,
		Type:       file.contentType,
		UploadedAt: now,
	}
	if err := h.store.Upload(r.Context(), doc.Key, file, doc.Size, doc.Type); err != nil {
		h.logger.Error("document upload failed", "contract_id", contractID, "error", err)
		writeError(w, r, apierrors.NewUpstreamError("s3", "failed to store document"))
		return
	}
	if err := h.documents.Create(r.Context(), doc); err != nil {
		if derr := h.store.Delete(r.Context(), doc.Key); derr != nil {
			h.logger.Warn("failed to remove orphaned object", "key", doc.Key, "error", derr)
		}
		respondErr(w, r, h.logger, "document", err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// List handles GET /contracts/{id}/documents.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	contractID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	docs, err := h.documents.ListByContract(r.Context(), userID, contractID)
	if err != nil {
		respondErr(w, r, h.logger, "document", err)
		return
	}
	if docs == nil {
		docs = []*model.ContractDocument{}
	}
	writeData(w, docs)
}

// URL handles GET /contracts/{id}/documents/{documentID} with a presigned download URL.
func (h *DocumentHandler) URL(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w, r) {
		return
	}
	doc, ok := h.document(w, r)
	if !ok {
		return
	}
	h.signed(w, r, doc.UserID, doc.Key)
}

// Delete handles DELETE /contracts/{id}/documents/{documentID}.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.document(w, r)
	if !ok {
		return
	}
	if err := h.documents.Delete(r.Context(), doc.UserID, doc.ID); err != nil {
		respondErr(w, r, h.logger, "document", err)
		return
	}
	if h.store != nil {
		if err := h.store.Delete(r.Context(), doc.Key); err != nil {
			h.logger.Warn("failed to delete document object", "key", doc.Key, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadInvoice handles POST /invoices/{id}/document, replacing any previous file.
func (h *DocumentHandler) UploadInvoice(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w, r) {
		return
	}
	inv, ok := h.invoice(w, r)
	if !ok {
		return
	}

	file, ok := h.readFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	previous := inv.DocumentPath
	key := storage.InvoiceKey(inv.UserID, inv.InvoiceNumber, file.name, time.Now().UTC())
	if err := h.store.Upload(r.Context(), key, file, file.size, file.contentType); err != nil {
		h.logger.Error("invoice upload failed", "invoice_id", inv.ID, "error", err)
		writeError(w, r, apierrors.NewUpstreamError("s3", "failed to store document"))
		return
	}
	inv.DocumentPath = key
	if err := h.invoices.Update(r.Context(), inv); err != nil {
		respondErr(w, r, h.logger, "invoice", err)
		return
	}
	if previous != "" && previous != key {
		if err := h.store.Delete(r.Context(), previous); err != nil {
			h.logger.Warn("failed to delete replaced invoice document", "key", previous, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, inv)
}

// InvoiceURL handles GET /invoices/{id}/document.
func (h *DocumentHandler) InvoiceURL(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w, r) {
		return
	}
	inv, ok := h.invoice(w, r)
	if !ok {
		return
	}
	if inv.DocumentPath == "" {
		writeError(w, r, apierrors.NewNotFoundError("invoice document", inv.ID.String()))
		return
	}
	h.signed(w, r, inv.UserID, inv.DocumentPath)
}

func (h *DocumentHandler) signed(w http.ResponseWriter, r *http.Request, userID uuid.UUID, key string) {
	if !storage.OwnedBy(key, userID) {
		writeError(w, r, apierrors.NewForbiddenError("document does not belong to this user"))
		return
	}
	url, expires, err := h.store.SignedURL(r.Context(), key)
	if err != nil {
		h.logger.Error("presign failed", "key", key, "error", err)
		writeError(w, r, apierrors.NewUpstreamError("s3", "failed to sign document URL"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"url": url, "expires_at": expires})
}

func (h *DocumentHandler) document(w http.ResponseWriter, r *http.Request) (*model.ContractDocument, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return nil, false
	}
	contractID, ok := pathUUID(w, r, "id")
	if !ok {
		return nil, false
	}
	docID, ok := pathUUID(w, r, "documentID")
	if !ok {
		return nil, false
	}
	doc, err := h.documents.GetByID(r.Context(), userID, docID)
	if err == nil && doc.ContractID != contractID {
		err = repository.ErrNotFound
	}
	if err != nil {
		respondErr(w, r, h.logger, "document", err)
		return nil, false
	}
	return doc, true
}

func (h *DocumentHandler) invoice(w http.ResponseWriter, r *http.Request) (*model.Invoice, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return nil, false
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return nil, false
	}
	inv, err := h.invoices.GetByID(r.Context(), userID, id)
	if err != nil {
		respondErr(w, r, h.logger, "invoice", err)
		return nil, false
	}
	return inv, true
}

func (h *DocumentHandler) enabled(w http.ResponseWriter, r *http.Request) bool {
	if h.store == nil {
		writeError(w, r, apierrors.NewServiceUnavailableError("document storage"))
		return false
	}
	return true
}

type uploadedFile struct {
	io.ReadCloser
	name        string
	size        int64
	contentType string
}

func (h *DocumentHandler) readFile(w http.ResponseWriter, r *http.Request) (*uploadedFile, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		badRequest(w, r, "invalid multipart upload or file too large")
		return nil, false
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, r, "file is required")
		return nil, false
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &uploadedFile{ReadCloser: f, name: header.Filename, size: header.Size, contentType: contentType}, true
}
