package messaging

import (
	"strings"
)

// Kind selects the operation a Request performs.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindAudio Kind = "audio"
	KindLink  Kind = "link"
)

// Request is an outbound send request, as received over HTTP or AMQP.
type Request struct {
	Kind     Kind   `json:"type"`
	Number   string `json:"number"`
	Message  string `json:"message,omitempty"`
	URL      string `json:"url,omitempty"`
	Caption  string `json:"caption,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Validation messages, returned verbatim to HTTP clients.
const (
	MsgTextRequired  = "Número e mensagem são obrigatórios."
	MsgMediaRequired = "Número e URL da imagem são obrigatórios."
	MsgLinkRequired  = "Número e URL do link são obrigatórios."
)

// ValidationError reports a request missing required fields.  No gateway
// call is made for an invalid request.
type ValidationError struct {
	Kind    Kind
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid " + string(e.Kind) + " request: " + e.Message
}

// Validate checks the fields required by the request kind.
func (r *Request) Validate() error {
	number := strings.TrimSpace(r.Number)
	switch r.Kind {
	case KindText:
		if number == "" || strings.TrimSpace(r.Message) == "" {
			return &ValidationError{Kind: r.Kind, Message: MsgTextRequired}
		}
	case KindImage, KindAudio:
		if number == "" || strings.TrimSpace(r.URL) == "" {
			return &ValidationError{Kind: r.Kind, Message: MsgMediaRequired}
		}
	case KindLink:
		if number == "" || strings.TrimSpace(r.URL) == "" {
			return &ValidationError{Kind: r.Kind, Message: MsgLinkRequired}
		}
	default:
		return &ValidationError{Kind: r.Kind, Message: "tipo de mensagem desconhecido: " + string(r.Kind)}
	}
	return nil
}
