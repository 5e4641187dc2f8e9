package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/hitoshi/linknote/internal/middleware"
	"github.com/hitoshi/linknote/internal/model"
)

// maxBodyBytes はJSONリクエストボディの上限。
const maxBodyBytes = 1 << 20

// writeJSON はvをJSONとして書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをdstに読み込む。失敗した場合は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return false
	}
	return true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials,
		model.ErrCodePasswordRequired, model.ErrCodeIncorrectPassword:
		return http.StatusUnauthorized
	case model.ErrCodePendingAuthorization:
		return middleware.StatusPendingAuthorization
	case model.ErrCodeForbidden, model.ErrCodeNotePrivate, model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeInvalidRequest, model.ErrCodeValidation, model.ErrCodeInvalidURL,
		model.ErrCodeInvalidAlias, model.ErrCodeInviteInvalid, model.ErrCodeInvalidSort:
		return http.StatusBadRequest
	case model.ErrCodeAliasTaken, model.ErrCodeEmailTaken, model.ErrCodeInviteLimit:
		return http.StatusConflict
	case model.ErrCodeShortURLNotFound, model.ErrCodeNoteNotFound, model.ErrCodeInvalidNoteID,
		model.ErrCodeUserNotFound, model.ErrCodeSessionNotFound, model.ErrCodeUnknownProvider:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// requireUserID はAuthGateが格納したユーザーIDを返す。
// 取得できない場合は401を書き込みfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return 0, false
	}
	return userID, true
}

// listParams はsort_by、direction、pageクエリを読み取る。
// pageが数値でない場合は400を書き込みfalseを返す。
func listParams(w http.ResponseWriter, r *http.Request) (model.ListParams, bool) {
	q := r.URL.Query()
	params := model.ListParams{
		SortBy:    q.Get("sort_by"),
		Direction: q.Get("direction"),
	}
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest,
				model.NewValidationError("page", "数値で指定してください"))
			return model.ListParams{}, false
		}
		params.Page = page
	}
	return params, true
}

// clientIP はセッションに記録する接続元IPを返す。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
