package wa

import (
	"context"

	"github.com/matheus3301/leadchat/internal/bus"
	"go.mau.fi/whatsmeow"
)

// AuthEventType enumerates auth event types.
type AuthEventType string

const (
	AuthEventQRCode        AuthEventType = "qr_code"
	AuthEventAuthenticated AuthEventType = "authenticated"
	AuthEventAuthFailed    AuthEventType = "auth_failed"
	AuthEventTimeout       AuthEventType = "timeout"
)

// Session auth kinds published alongside bus.KindAuthQR.
const (
	KindAuthenticated = "session.authenticated"
	KindAuthFailed    = "session.auth_failed"
)

// AuthEvent represents an auth lifecycle event.
type AuthEvent struct {
	Type    AuthEventType `json:"type"`
	QRCode  string        `json:"qrCode,omitempty"`
	Message string        `json:"message,omitempty"`
}

// StartQRAuth begins the QR pairing flow. Events are both returned on the
// channel and published on the bus; the channel closes when pairing ends.
func (a *Adapter) StartQRAuth(ctx context.Context) (<-chan AuthEvent, error) {
	qrChan, err := a.GetQRChannel(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan AuthEvent, 10)
	go func() {
		defer close(out)

		// Connect must be called after GetQRChannel.
		if err := a.Connect(); err != nil {
			a.emitAuth(out, AuthEvent{Type: AuthEventAuthFailed, Message: err.Error()})
			return
		}
		for item := range qrChan {
			if evt, done := authEventFor(item); evt.Type != "" {
				a.emitAuth(out, evt)
				if done {
					return
				}
			}
		}
	}()
	return out, nil
}

func (a *Adapter) emitAuth(out chan<- AuthEvent, evt AuthEvent) {
	out <- evt
	switch evt.Type {
	case AuthEventQRCode:
		a.bus.Emit(bus.KindAuthQR, evt.QRCode)
	case AuthEventAuthenticated:
		a.bus.Emit(KindAuthenticated, nil)
	default:
		a.bus.Emit(KindAuthFailed, evt.Message)
	}
}

// authEventFor maps a whatsmeow QR channel item. done reports whether the
// pairing flow has ended.
func authEventFor(item whatsmeow.QRChannelItem) (AuthEvent, bool) {
	switch item.Event {
	case whatsmeow.QRChannelEventCode:
		return AuthEvent{Type: AuthEventQRCode, QRCode: item.Code}, false
	case whatsmeow.QRChannelSuccess.Event:
		return AuthEvent{Type: AuthEventAuthenticated, Message: "authenticated"}, true
	case whatsmeow.QRChannelTimeout.Event:
		return AuthEvent{Type: AuthEventTimeout, Message: "QR code timeout"}, true
	}
	if item.Error != nil {
		return AuthEvent{Type: AuthEventAuthFailed, Message: item.Error.Error()}, true
	}
	return AuthEvent{}, false
}
