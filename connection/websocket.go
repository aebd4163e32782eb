// Copyright 2025 The Rivaas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package connection

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotAccepted is returned when a session is used before [WebSocket.Accept].
var ErrNotAccepted = errors.New("websocket: session not accepted")

// WebSocket is a websocket session. The handshake is completed by Accept, so
// the pipeline can still reject the connection with a plain HTTP response.
type WebSocket struct {
	req      *Request
	w        http.ResponseWriter
	upgrader *websocket.Upgrader
	conn     *websocket.Conn
}

// NewWebSocket prepares a session for req. A nil upgrader uses defaults.
func NewWebSocket(w http.ResponseWriter, req *Request, upgrader *websocket.Upgrader) *WebSocket {
	if upgrader == nil {
		upgrader = &websocket.Upgrader{}
	}
	return &WebSocket{req: req, w: w, upgrader: upgrader}
}

// Request returns the handshake request.
func (s *WebSocket) Request() *Request {
	return s.req
}

// Accept completes the handshake. headers are added to the 101 response.
func (s *WebSocket) Accept(headers http.Header) error {
	if s.conn != nil {
		return nil
	}
	conn, err := s.upgrader.Upgrade(s.w, s.req.HTTP(), headers)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// Accepted reports whether the handshake completed.
func (s *WebSocket) Accepted() bool {
	return s.conn != nil
}

// Conn returns the underlying connection, nil before Accept.
func (s *WebSocket) Conn() *websocket.Conn {
	return s.conn
}

// ReceiveText reads one text or binary message as a string.
func (s *WebSocket) ReceiveText() (string, error) {
	data, err := s.ReceiveBytes()
	return string(data), err
}

// ReceiveBytes reads one message.
func (s *WebSocket) ReceiveBytes() ([]byte, error) {
	if s.conn == nil {
		return nil, ErrNotAccepted
	}
	_, data, err := s.conn.ReadMessage()
	return data, err
}

// ReceiveJSON reads one message into v.
func (s *WebSocket) ReceiveJSON(v any) error {
	if s.conn == nil {
		return ErrNotAccepted
	}
	return s.conn.ReadJSON(v)
}

// SendText writes a text message.
func (s *WebSocket) SendText(text string) error {
	if s.conn == nil {
		return ErrNotAccepted
	}
	return s.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// SendBytes writes a binary message.
func (s *WebSocket) SendBytes(data []byte) error {
	if s.conn == nil {
		return ErrNotAccepted
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// SendJSON writes v as a JSON text message.
func (s *WebSocket) SendJSON(v any) error {
	if s.conn == nil {
		return ErrNotAccepted
	}
	return s.conn.WriteJSON(v)
}

// Close sends a close frame with code and reason and closes the connection.
func (s *WebSocket) Close(code int, reason string) error {
	if s.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(code, reason)
	writeErr := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	closeErr := s.conn.Close()
	s.conn = nil
	if writeErr != nil && !errors.Is(writeErr, websocket.ErrCloseSent) {
		return errors.Join(writeErr, closeErr)
	}
	return closeErr
}

// IsDisconnect reports whether err signals that the peer went away.
func IsDisconnect(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure,
	)
}
