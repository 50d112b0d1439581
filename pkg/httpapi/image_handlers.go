package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jmalloway/checksub001/pkg/apierr"
	"github.com/jmalloway/checksub001/pkg/audit"
	"github.com/jmalloway/checksub001/pkg/dispatch"
	"github.com/jmalloway/checksub001/pkg/imagetoken"
	"github.com/jmalloway/checksub001/pkg/model"
)

type mintTokensRequest struct {
	ImageIDs []string `json:"image_ids"`
}

type mintedToken struct {
	TokenID   string    `json:"token_id"`
	ImageURL  string    `json:"image_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleMintImageTokens(w http.ResponseWriter, r *http.Request) {
	id, _ := dispatch.IdentityFromContext(r.Context())
	var req mintTokensRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, r, err)
		return
	}
	if len(req.ImageIDs) == 0 {
		apierr.Write(w, r, apierr.New(apierr.CodeValidationMissingField, "image_ids is required"))
		return
	}

	tokens, err := s.imageTokens.MintBatch(r.Context(), id.User.TenantID, id.User.ID, req.ImageIDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	minted := make([]mintedToken, len(tokens))
	tid := id.User.TenantID
	uid := id.User.ID
	for i, tok := range tokens {
		minted[i] = mintedToken{
			TokenID:   tok.ID,
			ImageURL:  "/api/v1/images/secure/" + tok.ID,
			ExpiresAt: tok.ExpiresAt,
		}
		_, _ = s.auditSvc.Log(r.Context(), audit.Entry{
			TenantID: &tid, UserID: &uid, Username: id.User.Username,
			IPAddress: s.clientIP(r), UserAgent: r.UserAgent(),
			Action: model.AuditImageTokenMinted, ResourceType: "check_image", ResourceID: tok.ImageID,
			Description: "one-time image token minted",
			Extra:       map[string]any{"token_id": tok.ID, "expires_at": tok.ExpiresAt},
			SessionID:   &id.SessionID,
		})
	}
	writeJSON(w, http.StatusCreated, map[string]any{"tokens": minted})
}

// handleServeImage consumes a one-time token (or validates a signed-URL
// bearer JWT) and streams the image bytes. The token IS the credential;
// there is no bearer auth on this route.
func (s *Server) handleServeImage(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("token")
	ip := s.clientIP(r)
	ua := r.UserAgent()

	var tenantID, imageID string
	if _, err := uuid.Parse(raw); err == nil {
		tok, err := s.imageTokens.Consume(r.Context(), raw, ip, ua)
		if err != nil {
			s.auditTokenFailure(r, raw, ip, ua, err)
			writeServiceError(w, r, err)
			return
		}
		tenantID, imageID = tok.TenantID, tok.ImageID

		tid := tok.TenantID
		_, _ = s.auditSvc.Log(r.Context(), audit.Entry{
			TenantID: &tid, Username: "", IPAddress: ip, UserAgent: ua,
			Action: model.AuditImageTokenUsed, ResourceType: "check_image", ResourceID: tok.ImageID,
			Description: "one-time image token consumed",
			Extra:       map[string]any{"token_id": tok.ID},
		})
	} else {
		// Signed-URL bearer fallback: 90s TTL, no one-time enforcement.
		claims, err := s.tokens.ValidateImageURLToken(raw)
		if err != nil {
			apierr.Write(w, r, apierr.New(apierr.CodeAuthTokenInvalid, "Invalid image token"))
			return
		}
		tenantID, imageID = claims.TenantID, claims.ImageID

		tid := claims.TenantID
		uid := claims.UserID
		_, _ = s.auditSvc.Log(r.Context(), audit.Entry{
			TenantID: &tid, UserID: &uid, IPAddress: ip, UserAgent: ua,
			Action: model.AuditImageViewed, ResourceType: "check_image", ResourceID: claims.ImageID,
			Description: "signed image URL used",
		})
	}

	var data []byte
	var contentType string
	err := s.imageFetch(r.Context(), func(ctx context.Context) error {
		var fetchErr error
		data, contentType, fetchErr = s.images.FetchImage(ctx, tenantID, imageID)
		return fetchErr
	})
	if err != nil {
		// A consumed one-time token stays burned even when the fetch fails;
		// the client must re-mint.
		apierr.Write(w, r, apierr.Wrap(apierr.CodeSystemExternalService, "Image fetch failed; request a new token", err))
		return
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "private, no-store, no-cache, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "SAMEORIGIN")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Content-Disposition", "inline")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) auditTokenFailure(r *http.Request, tokenID, ip, ua string, cause error) {
	action := model.AuditImageTokenInvalid
	if errors.Is(cause, imagetoken.ErrGone) {
		// Distinguish expiry from reuse for the audit trail; both render as
		// 410 to the client.
		if tok, err := s.imageTokens.Peek(r.Context(), tokenID); err == nil && tok != nil && tok.UsedAt == nil {
			action = model.AuditImageTokenExpired
		}
	}
	_, _ = s.auditSvc.Log(r.Context(), audit.Entry{
		IPAddress: ip, UserAgent: ua,
		Action: action, ResourceType: "image_access_token", ResourceID: tokenID,
		Description: cause.Error(),
	})
}
