package marketplace

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
)

// maxKYCDocument bounds the uploaded document size.
const maxKYCDocument = 10 << 20

// GetProfile returns the signed-in user's profile.
func (a *API) GetProfile(ctx context.Context) (Profile, error) {
	return call[Profile](ctx, a, http.MethodGet, "/users/profile", nil)
}

// UpdateProfile applies the non-nil fields of in.
func (a *API) UpdateProfile(ctx context.Context, in ProfileUpdate) (Profile, error) {
	if err := a.check(in); err != nil {
		return Profile{}, err
	}
	return call[Profile](ctx, a, http.MethodPatch, "/users/profile", in)
}

// SubmitKYC uploads an identity document as multipart/form-data. The whole
// form is buffered so the upload can be replayed after a session refresh.
func (a *API) SubmitKYC(ctx context.Context, in KYCSubmission, document io.Reader) (KYCRequest, error) {
	if err := a.check(in); err != nil {
		return KYCRequest{}, err
	}
	if document == nil {
		return KYCRequest{}, fmt.Errorf("%w: missing document", ErrInvalidInput)
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("document_type", in.DocumentType); err != nil {
		return KYCRequest{}, err
	}
	if err := form.WriteField("document_number", in.DocumentNumber); err != nil {
		return KYCRequest{}, err
	}
	part, err := form.CreateFormFile("document", in.FileName)
	if err != nil {
		return KYCRequest{}, err
	}
	n, err := io.Copy(part, io.LimitReader(document, maxKYCDocument+1))
	if err != nil {
		return KYCRequest{}, fmt.Errorf("read document: %w", err)
	}
	if n > maxKYCDocument {
		return KYCRequest{}, fmt.Errorf("%w: document larger than %d bytes", ErrInvalidInput, maxKYCDocument)
	}
	if err := form.Close(); err != nil {
		return KYCRequest{}, err
	}

	return call[KYCRequest](ctx, a, http.MethodPost, "/users/kyc", nil,
		goSession.WithRawBody(form.FormDataContentType(), buf.Bytes()))
}
