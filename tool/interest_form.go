package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const InterestFormName = "send_interest_form"

type Method string

const (
	MethodEmail Method = "email"
	MethodSMS   Method = "sms"
)

// FormSender delivers the interest form link to a contact.
type FormSender interface {
	SendInterestForm(ctx context.Context, contact string, method Method) error
}

// InterestForm is the send_interest_form tool.
type InterestForm struct {
	sender FormSender
}

func NewInterestForm(sender FormSender) *InterestForm {
	return &InterestForm{sender: sender}
}

func (f *InterestForm) Declaration() Declaration {
	return Declaration{
		Name:        InterestFormName,
		Description: "Sends the interest form link to a user via email or phone text message.",
		Parameters: Parameters{
			Type: TypeObject,
			Properties: Properties{
				"contact_info": {
					Type:        TypeString,
					Description: "The email address or phone number provided by the user.",
				},
				"method": {
					Type:        TypeString,
					Description: "The method of delivery: 'email' or 'sms'. Infer this from the contact_info.",
				},
			},
			Required: []string{"contact_info", "method"},
		},
	}
}

// Invoke does not second guess the method the model inferred.
func (f *InterestForm) Invoke(ctx context.Context, args map[string]any) (string, error) {
	contact := fmt.Sprint(args["contact_info"])
	method := Method(fmt.Sprint(args["method"]))

	if err := f.sender.SendInterestForm(ctx, contact, method); err != nil {
		return "", fmt.Errorf("failed to send interest form to %s: %w", contact, err)
	}

	return fmt.Sprintf("Successfully sent the interest form link to %s via %s.", contact, method), nil
}

// DefaultSimulatedDelay is how long a simulated delivery takes.
const DefaultSimulatedDelay = 1500 * time.Millisecond

// SimulatedSender pretends to deliver the form after a fixed delay.
type SimulatedSender struct {
	Delay  time.Duration
	Logger *slog.Logger
}

func (s *SimulatedSender) SendInterestForm(ctx context.Context, contact string, method Method) error {
	if s.Logger != nil {
		s.Logger.Info("sending interest form", slog.String("contact", contact), slog.String("method", string(method)))
	}

	if s.Delay <= 0 {
		return nil
	}

	select {
	case <-time.After(s.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HTTPSender posts the delivery request to a backend endpoint.
type HTTPSender struct {
	Endpoint string
	Client   *http.Client
}

type interestFormRequest struct {
	ContactInfo string `json:"contact_info"`
	Method      Method `json:"method"`
}

func (s *HTTPSender) SendInterestForm(ctx context.Context, contact string, method Method) error {
	body, err := json.Marshal(interestFormRequest{ContactInfo: contact, Method: method})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("interest form backend returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	return nil
}
