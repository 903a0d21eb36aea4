package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/alwitt/cardbank/db"
	"github.com/alwitt/cardbank/models"
	"github.com/alwitt/cardbank/store"
	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/gorilla/mux"
)

// RecordResponse single encryption record response
type RecordResponse struct {
	goutils.RestAPIBaseResponse
	// Record the encryption record
	Record models.EncryptionRecord `json:"record"`
}

// RecordListResponse encryption record listing response
type RecordListResponse struct {
	goutils.RestAPIBaseResponse
	// Records the encryption records
	Records []models.EncryptionRecord `json:"records"`
}

// UpdateRecordRequest encryption record update request body
type UpdateRecordRequest struct {
	// ID record ID
	ID string `json:"id"`
	// CiphertextHex hex encoded cipher text; must match the stored value when provided
	CiphertextHex string `json:"ciphertext_hex,omitempty"`
}

// RecordHandler encryption record CRUD REST handler
type RecordHandler struct {
	goutils.RestAPIHandler
	records store.RecordStore
}

/*
NewRecordHandler define new encryption record CRUD REST handler

	@param records store.RecordStore - encryption record store
	@param requestIDHeader string - header carrying the caller's request ID
	@returns handler
*/
func NewRecordHandler(records store.RecordStore, requestIDHeader string) (RecordHandler, error) {
	if records == nil {
		return RecordHandler{}, fmt.Errorf("no record store provided")
	}
	logTags := log.Fields{"module": "api", "component": "record-handler"}
	return RecordHandler{
		RestAPIHandler: newRestAPIHandler(logTags, requestIDHeader),
		records:        records,
	}, nil
}

// recordErrorResponse map a record store error to a response
func (h RecordHandler) recordErrorResponse(
	r *http.Request, err error, logTags log.Fields,
) (int, interface{}) {
	switch {
	case errors.Is(err, models.ErrRecordNotFound):
		return http.StatusNotFound, h.GetStdRESTErrorMsg(
			r.Context(), http.StatusNotFound, "Record not found", "",
		)
	case errors.Is(err, models.ErrRecordImmutable):
		return http.StatusConflict, h.GetStdRESTErrorMsg(
			r.Context(), http.StatusConflict, "Record cipher text can not change", "",
		)
	default:
		log.WithError(err).WithFields(logTags).Error("Record operation failed")
		return http.StatusInternalServerError, h.GetStdRESTErrorMsg(
			r.Context(), http.StatusInternalServerError, "Record operation failed", "",
		)
	}
}

// readOptionalInt parse an optional non-negative integer query parameter
func readOptionalInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return nil, fmt.Errorf("query parameter %s must be a non-negative integer", name)
	}
	return &value, nil
}

// ====================================================================================
// List

// ListRecordsHandler wrapper around ListRecords
func (h RecordHandler) ListRecordsHandler() http.HandlerFunc {
	return h.LoggingMiddleware(h.ListRecords)
}

/*
ListRecords list encryption records, newest first

	@param w http.ResponseWriter - response writer
	@param r *http.Request - request
*/
func (h RecordHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	var respCode int
	var response interface{}
	logTags := h.GetLogTagsForContext(r.Context())
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, response, nil); err != nil {
			log.WithError(err).WithFields(logTags).Error("Failed to form response")
		}
	}()

	filters := db.EncryptionRecordQueryFilter{}
	var err error
	if filters.Limit, err = readOptionalInt(r, "limit"); err != nil {
		log.WithError(err).WithFields(logTags).Error("Invalid limit")
		respCode = http.StatusBadRequest
		response = h.GetStdRESTErrorMsg(r.Context(), respCode, "Invalid limit", "")
		return
	}
	if filters.Offset, err = readOptionalInt(r, "offset"); err != nil {
		log.WithError(err).WithFields(logTags).Error("Invalid offset")
		respCode = http.StatusBadRequest
		response = h.GetStdRESTErrorMsg(r.Context(), respCode, "Invalid offset", "")
		return
	}

	entries, err := h.records.GetAll(r.Context(), filters, nil)
	if err != nil {
		respCode, response = h.recordErrorResponse(r, err, logTags)
		return
	}

	respCode = http.StatusOK
	response = RecordListResponse{
		RestAPIBaseResponse: h.GetStdRESTSuccessMsg(r.Context()),
		Records:             entries,
	}
}

// ====================================================================================
// Get

// GetRecordHandler wrapper around GetRecord
func (h RecordHandler) GetRecordHandler() http.HandlerFunc {
	return h.LoggingMiddleware(h.GetRecord)
}

/*
GetRecord fetch one encryption record

	@param w http.ResponseWriter - response writer
	@param r *http.Request - request
*/
func (h RecordHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	var respCode int
	var response interface{}
	logTags := h.GetLogTagsForContext(r.Context())
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, response, nil); err != nil {
			log.WithError(err).WithFields(logTags).Error("Failed to form response")
		}
	}()

	recordID := mux.Vars(r)["id"]
	entry, err := h.records.GetByID(r.Context(), recordID, nil)
	if err != nil {
		respCode, response = h.recordErrorResponse(r, err, logTags)
		return
	}

	respCode = http.StatusOK
	response = RecordResponse{
		RestAPIBaseResponse: h.GetStdRESTSuccessMsg(r.Context()),
		Record:              entry,
	}
}

// ====================================================================================
// Update

// UpdateRecordHandler wrapper around UpdateRecord
func (h RecordHandler) UpdateRecordHandler() http.HandlerFunc {
	return h.LoggingMiddleware(h.UpdateRecord)
}

/*
UpdateRecord update an encryption record

	@param w http.ResponseWriter - response writer
	@param r *http.Request - request
*/
func (h RecordHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	var respCode int
	var response interface{}
	logTags := h.GetLogTagsForContext(r.Context())
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, response, nil); err != nil {
			log.WithError(err).WithFields(logTags).Error("Failed to form response")
		}
	}()

	var params UpdateRecordRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(
		&params,
	); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(logTags).Error(msg)
		respCode = http.StatusBadRequest
		response = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, "")
		return
	}
	if params.ID == "" {
		respCode = http.StatusBadRequest
		response = h.GetStdRESTErrorMsg(r.Context(), respCode, "Record ID is required", "")
		return
	}

	entry, err := h.records.Update(r.Context(), models.EncryptionRecord{
		ID: params.ID, CiphertextHex: params.CiphertextHex,
	}, nil)
	if err != nil {
		respCode, response = h.recordErrorResponse(r, err, logTags)
		return
	}

	respCode = http.StatusOK
	response = RecordResponse{
		RestAPIBaseResponse: h.GetStdRESTSuccessMsg(r.Context()),
		Record:              entry,
	}
}

// ====================================================================================
// Delete

// DeleteRecordHandler wrapper around DeleteRecord
func (h RecordHandler) DeleteRecordHandler() http.HandlerFunc {
	return h.LoggingMiddleware(h.DeleteRecord)
}

/*
DeleteRecord delete an encryption record

	@param w http.ResponseWriter - response writer
	@param r *http.Request - request
*/
func (h RecordHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	logTags := h.GetLogTagsForContext(r.Context())

	recordID := mux.Vars(r)["id"]
	if err := h.records.DeleteByID(r.Context(), recordID, nil); err != nil {
		respCode, response := h.recordErrorResponse(r, err, logTags)
		if err := h.WriteRESTResponse(w, respCode, response, nil); err != nil {
			log.WithError(err).WithFields(logTags).Error("Failed to form response")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
