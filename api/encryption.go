// Package api - REST API
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/alwitt/cardbank/models"
	"github.com/alwitt/cardbank/service"
	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
)

// maxRequestBodyBytes upper bound of any request body
const maxRequestBodyBytes = 16 * 1024

// EncryptRequest encrypt request body
type EncryptRequest struct {
	// PlainText the data to protect
	PlainText string `json:"plaintext" validate:"required"`
}

// EncryptResponse encrypt response
type EncryptResponse struct {
	goutils.RestAPIBaseResponse
	// RecordID persisted encryption record ID
	RecordID string `json:"record_id"`
	// Token authorizes decrypting the record
	Token string `json:"token"`
}

// DecryptResponse decrypt response
type DecryptResponse struct {
	goutils.RestAPIBaseResponse
	// PlainText the recovered data
	PlainText string `json:"plaintext"`
}

// EncryptionHandler encrypt and decrypt REST handler
type EncryptionHandler struct {
	goutils.RestAPIHandler
	service  service.EncryptionSessionService
	validate *validator.Validate
}

/*
NewEncryptionHandler define new encrypt and decrypt REST handler

	@param core service.EncryptionSessionService - encryption session service
	@param requestIDHeader string - header carrying the caller's request ID
	@returns handler
*/
func NewEncryptionHandler(
	core service.EncryptionSessionService, requestIDHeader string,
) (EncryptionHandler, error) {
	if core == nil {
		return EncryptionHandler{}, fmt.Errorf("no encryption session service provided")
	}
	logTags := log.Fields{"module": "api", "component": "encryption-handler"}
	return EncryptionHandler{
		RestAPIHandler: newRestAPIHandler(logTags, requestIDHeader),
		service:        core,
		validate:       validator.New(),
	}, nil
}

// ====================================================================================
// Encrypt

// EncryptHandler wrapper around Encrypt
func (h EncryptionHandler) EncryptHandler() http.HandlerFunc {
	return h.LoggingMiddleware(h.Encrypt)
}

/*
Encrypt encrypt plain text and return its record ID and decryption token

	@param w http.ResponseWriter - response writer
	@param r *http.Request - request
*/
func (h EncryptionHandler) Encrypt(w http.ResponseWriter, r *http.Request) {
	var respCode int
	var response interface{}
	logTags := h.GetLogTagsForContext(r.Context())
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, response, nil); err != nil {
			log.WithError(err).WithFields(logTags).Error("Failed to form response")
		}
	}()

	var params EncryptRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(
		&params,
	); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(logTags).Error(msg)
		respCode = http.StatusBadRequest
		response = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, "")
		return
	}
	if err := h.validate.Struct(&params); err != nil {
		msg := "Request body is not valid"
		log.WithError(err).WithFields(logTags).Error(msg)
		respCode = http.StatusBadRequest
		response = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, "")
		return
	}

	record, token, err := h.service.Encrypt(r.Context(), []byte(params.PlainText))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidPayload):
			respCode = http.StatusBadRequest
			response = h.GetStdRESTErrorMsg(r.Context(), respCode, "Invalid plain text", "")
		case errors.Is(err, models.ErrPayloadTooLarge):
			respCode = http.StatusRequestEntityTooLarge
			response = h.GetStdRESTErrorMsg(r.Context(), respCode, "Plain text too large", "")
		default:
			log.WithError(err).WithFields(logTags).Error("Encryption failed")
			respCode = http.StatusInternalServerError
			response = h.GetStdRESTErrorMsg(r.Context(), respCode, "Encryption failed", "")
		}
		return
	}

	respCode = http.StatusCreated
	response = EncryptResponse{
		RestAPIBaseResponse: h.GetStdRESTSuccessMsg(r.Context()),
		RecordID:            record.ID,
		Token:               token,
	}
}

// ====================================================================================
// Decrypt

// DecryptHandler wrapper around Decrypt
func (h EncryptionHandler) DecryptHandler() http.HandlerFunc {
	return h.LoggingMiddleware(h.Decrypt)
}

/*
Decrypt recover the plain text of the record a token is bound to

	@param w http.ResponseWriter - response writer
	@param r *http.Request - request
*/
func (h EncryptionHandler) Decrypt(w http.ResponseWriter, r *http.Request) {
	var respCode int
	var response interface{}
	logTags := h.GetLogTagsForContext(r.Context())
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, response, nil); err != nil {
			log.WithError(err).WithFields(logTags).Error("Failed to form response")
		}
	}()

	token := r.URL.Query().Get("token")
	if token == "" {
		respCode = http.StatusBadRequest
		response = h.GetStdRESTErrorMsg(r.Context(), respCode, "Missing token", "")
		return
	}

	plainText, err := h.service.Decrypt(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTokenInvalid), errors.Is(err, models.ErrTokenExpired):
			// The reason a token is refused is never disclosed
			respCode = http.StatusUnauthorized
			response = h.GetStdRESTErrorMsg(
				r.Context(), respCode, "Token invalid or expired", "",
			)
		case errors.Is(err, models.ErrSessionExpired), errors.Is(err, models.ErrRecordNotFound):
			respCode = http.StatusNotFound
			response = h.GetStdRESTErrorMsg(r.Context(), respCode, "Record not available", "")
		default:
			log.WithError(err).WithFields(logTags).Error("Decryption failed")
			respCode = http.StatusInternalServerError
			response = h.GetStdRESTErrorMsg(r.Context(), respCode, "Decryption failed", "")
		}
		return
	}

	respCode = http.StatusOK
	response = DecryptResponse{
		RestAPIBaseResponse: h.GetStdRESTSuccessMsg(r.Context()),
		PlainText:           string(plainText),
	}
}
