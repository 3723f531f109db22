package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"your.org/whatsapp-rest/internal/log"
	"your.org/whatsapp-rest/internal/messaging"
)

// Failure messages of the send routes.
const (
	msgSendFailed      = "Falha ao enviar a mensagem."
	msgImageFailed     = "Falha ao enviar a imagem."
	msgAudioFailed     = "Falha ao enviar o áudio."
	msgLinkFailed      = "Falha ao enviar o Link."
	msgQRNotReadyHTML  = "<p>Gerando QR Code, por favor atualize a página em alguns segundos.</p>"
	maxRequestBodySize = 1 << 20
)

const qrPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta http-equiv="refresh" content="%d">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>QR Code</title>
</head>
<body>
  <img src="%s" alt="QR Code">
</body>
</html>
`

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeSendError maps a messaging error to 400 (validation) or 500.
func writeSendError(w http.ResponseWriter, err error, failMsg string) {
	var ve *messaging.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Message})
		return
	}
	log.Errorf("%s %v", failMsg, err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: failMsg})
}

func (s *Server) handleQRWeb(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	qr, ok := s.state.QRCodeDataURL()
	if !ok || qr == "" {
		_, _ = io.WriteString(w, msgQRNotReadyHTML)
		return
	}
	refresh := int(math.Round(s.cfg.QRRefresh.Seconds()))
	if refresh <= 0 {
		refresh = 10
	}
	_, _ = fmt.Fprintf(w, qrPage, refresh, html.EscapeString(qr))
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	var body struct {
		QRCodeBase64 *string `json:"qrCodeBase64"`
	}
	if qr, ok := s.state.QRCodeDataURL(); ok {
		body.QRCodeBase64 = &qr
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleConnected(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"connected": s.state.Connected()})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Logout(r.Context()); err != nil {
		log.Errorf("logout failed: %v", err)
		writeJSON(w, http.StatusOK, map[string]bool{"success": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleValidNumber(w http.ResponseWriter, r *http.Request) {
	numero := mux.Vars(r)["numero"]
	exists, err := s.svc.ValidNumber(r.Context(), numero)
	if err != nil {
		log.Errorf("valid_number %s failed: %v", numero, err)
		writeJSON(w, http.StatusInternalServerError, map[string]bool{"success": false, "exists": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true, "exists": exists})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	b, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: messaging.MsgTextRequired})
		return
	}
	id, err := s.svc.SendText(r.Context(), string(b.Number), b.Message)
	if err != nil {
		writeSendError(w, err, msgSendFailed)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success   bool   `json:"success"`
		MessageID string `json:"messageId"`
	}{true, id})
}

func (s *Server) handleSendImage(w http.ResponseWriter, r *http.Request) {
	b, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: messaging.MsgMediaRequired})
		return
	}
	if err := s.svc.SendImage(r.Context(), string(b.Number), b.URL); err != nil {
		writeSendError(w, err, msgImageFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleSendAudio(w http.ResponseWriter, r *http.Request) {
	b, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: messaging.MsgMediaRequired})
		return
	}
	if err := s.svc.SendAudio(r.Context(), string(b.Number), b.URL); err != nil {
		writeSendError(w, err, msgAudioFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleSendLink(w http.ResponseWriter, r *http.Request) {
	b, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: messaging.MsgLinkRequired})
		return
	}
	if err := s.svc.SendLink(r.Context(), string(b.Number), b.URL, b.Caption, b.ImageURL); err != nil {
		writeSendError(w, err, msgLinkFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// sendBody is the union of the send routes' request fields.
type sendBody struct {
	Number   flexString `json:"number"`
	Message  string     `json:"message"`
	URL      string     `json:"url"`
	Caption  string     `json:"caption"`
	ImageURL string     `json:"imageUrl"`
}

// flexString accepts a JSON string or number; clients often send phone
// numbers unquoted.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// decodeBody reads a JSON or form encoded body.  An empty body decodes
// to the zero value so validation reports the missing fields.
func decodeBody(r *http.Request) (sendBody, error) {
	var b sendBody
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
		if strings.HasPrefix(ct, "multipart/") {
			if err := r.ParseMultipartForm(maxRequestBodySize); err != nil {
				return b, err
			}
		} else if err := r.ParseForm(); err != nil {
			return b, err
		}
		b.Number = flexString(r.PostFormValue("number"))
		b.Message = r.PostFormValue("message")
		b.URL = r.PostFormValue("url")
		b.Caption = r.PostFormValue("caption")
		b.ImageURL = r.PostFormValue("imageUrl")
		return b, nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	if err := dec.Decode(&b); err != nil && !errors.Is(err, io.EOF) {
		return b, err
	}
	return b, nil
}
