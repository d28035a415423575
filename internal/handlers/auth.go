package handlers

import (
	"html/template"
	"net"
	"net/http"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	apperrors "chaseinvest/internal/errors"
	"chaseinvest/internal/middleware"
	"chaseinvest/internal/services"
	"chaseinvest/internal/vault"
)

// qrSize is the edge length of the code-entry QR image in pixels.
const qrSize = 256

// loginRequest is the body of POST /login. Empty fields fall back to the
// configured or stored credentials.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	LastFour string `json:"last_four"`
}

type loginResponse struct {
	Authenticated bool   `json:"authenticated"`
	MFARequired   bool   `json:"mfa_required"`
	CodeURL       string `json:"code_url,omitempty"`
}

// Login starts a brokerage login. When the site asks for a one-time code the
// response says so and links to the code-entry page.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.broker.Authenticated() {
		writeJSON(w, http.StatusOK, loginResponse{Authenticated: true})
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	creds := vault.Credentials{
		Username: middleware.SanitizeString(req.Username),
		Password: req.Password,
		LastFour: strings.TrimSpace(req.LastFour),
	}
	if creds.Username == "" || creds.Password == "" {
		if h.creds == nil {
			writeError(w, h.log, vault.ErrNoCredentials)
			return
		}
		stored, err := h.creds(r.Context())
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		creds = stored
	}

	var errs middleware.ValidationErrors
	if !middleware.ValidateRequired(creds.Username) {
		errs.Add("username", "is required")
	}
	if !middleware.ValidateRequired(creds.Password) {
		errs.Add("password", "is required")
	}
	if creds.LastFour != "" && !middleware.ValidateLastFour(creds.LastFour) {
		errs.Add("last_four", "must be four digits")
	}
	if errs.HasErrors() {
		errs.WriteJSON(w)
		return
	}

	mfa, err := h.broker.Login(r.Context(), creds.Username, creds.Password, creds.LastFour)
	if err != nil {
		h.record(r, services.AuditLoginFailed, "session", "", map[string]string{"error": err.Error()})
		writeError(w, h.log, err)
		return
	}
	h.record(r, services.AuditLoginStarted, "session", "", map[string]bool{"mfa_required": mfa})

	resp := loginResponse{Authenticated: !mfa, MFARequired: mfa}
	if mfa {
		resp.CodeURL = h.codeURL()
	}
	writeJSON(w, http.StatusOK, resp)
}

type codeRequest struct {
	Code string `json:"code"`
}

// SubmitCode completes a login with the one-time code.
func (h *Handler) SubmitCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	code := strings.TrimSpace(req.Code)
	if !middleware.ValidateCode(code) {
		writeError(w, h.log, apperrors.ValidationField("code", "code must be 4 to 8 digits"))
		return
	}

	if err := h.broker.SubmitCode(r.Context(), code); err != nil {
		h.record(r, services.AuditCodeRejected, "session", "", map[string]string{"error": err.Error()})
		writeError(w, h.log, err)
		return
	}
	h.record(r, services.AuditCodeSubmitted, "session", "", nil)
	writeJSON(w, http.StatusOK, loginResponse{Authenticated: true})
}

// MFAQRCode serves a PNG QR code linking to the code-entry page, so the
// code can be typed on the phone that received it.
func (h *Handler) MFAQRCode(w http.ResponseWriter, r *http.Request) {
	png, err := qrcode.Encode(h.codeURL(), qrcode.Medium, qrSize)
	if err != nil {
		writeError(w, h.log, apperrors.Internal("generating QR code", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Write(png)
}

// codeURL builds the absolute link to the code-entry page. The request's
// Host header is never used: the link carries the API token.
func (h *Handler) codeURL() string {
	base := strings.TrimRight(h.publicURL, "/")
	if base == "" {
		base = "http://" + listenHost(h.serverAddr)
	}

	link := base + "/mfa"
	if h.apiToken != "" {
		link += "?" + url.Values{middleware.TokenQueryParam: {h.apiToken}}.Encode()
	}
	return link
}

// listenHost turns a listen address into one a browser can open, using
// localhost for an unspecified host.
func listenHost(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

var codePage = template.Must(template.New("code").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Enter code</title>
<style>body{font-family:sans-serif;max-width:24rem;margin:3rem auto;padding:0 1rem}input,button{font-size:1.5rem;width:100%;margin-top:.5rem}</style>
</head>
<body>
{{if .Message}}<p>{{.Message}}</p>{{end}}
{{if .Pending}}
<form method="post">
<input name="code" inputmode="numeric" autocomplete="one-time-code" autofocus required>
<button type="submit">Submit</button>
</form>
{{end}}
</body>
</html>
`))

type codePageData struct {
	Pending bool
	Message string
}

// CodePage renders the code-entry form. The form posts back to its own URL,
// so a token in the query string carries over.
func (h *Handler) CodePage(w http.ResponseWriter, r *http.Request) {
	data := codePageData{Pending: h.broker.MFAPending()}
	if !data.Pending {
		if h.broker.Authenticated() {
			data.Message = "Already logged in."
		} else {
			data.Message = "No code has been requested."
		}
	}
	h.renderCodePage(w, http.StatusOK, data)
}

// CodeForm handles the code-entry form post.
func (h *Handler) CodeForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.renderCodePage(w, http.StatusBadRequest, codePageData{Pending: true, Message: "Invalid form."})
		return
	}

	code := strings.TrimSpace(r.PostForm.Get("code"))
	if !middleware.ValidateCode(code) {
		h.renderCodePage(w, http.StatusBadRequest, codePageData{Pending: true, Message: "The code must be 4 to 8 digits."})
		return
	}

	if err := h.broker.SubmitCode(r.Context(), code); err != nil {
		h.record(r, services.AuditCodeRejected, "session", "", map[string]string{"error": err.Error()})
		appErr := toAppError(err)
		h.log.Warn("code submission failed", "error", err)
		h.renderCodePage(w, apperrors.HTTPStatus(appErr), codePageData{
			Pending: h.broker.MFAPending(),
			Message: apperrors.Message(appErr),
		})
		return
	}
	h.record(r, services.AuditCodeSubmitted, "session", "", nil)
	h.renderCodePage(w, http.StatusOK, codePageData{Message: "Logged in. You can close this page."})
}

func (h *Handler) renderCodePage(w http.ResponseWriter, status int, data codePageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := codePage.Execute(w, data); err != nil {
		h.log.Error("rendering code page", "error", err)
	}
}
