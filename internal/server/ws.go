package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sjawhar/ghost-interviewer/internal/session"
	"github.com/sjawhar/ghost-interviewer/internal/transcript"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func registerWSRoute(mux *http.ServeMux, hub *Hub, logger *slog.Logger) {
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("ws upgrade error", "error", err)
			return
		}
		defer func() { _ = conn.Close() }()

		connectionEvent := ConnectionEvent{
			Event:     newEvent("connection", time.Now().UTC()),
			Connected: true,
		}
		payload, err := json.Marshal(connectionEvent)
		if err == nil {
			_ = conn.WriteMessage(websocket.TextMessage, payload)
		}

		ch := hub.Subscribe()
		defer hub.Unsubscribe(ch)

		// Reads only detect the client going away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-gone:
				return
			case msg := <-ch:
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}
	})
}

// Frame is one JSON message from the voice agent on the session ingress.
type Frame struct {
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Text    string `json:"text,omitempty"`
	Partial bool   `json:"partial,omitempty"`
}

const (
	FrameStart      = "start"
	FrameUtterance  = "utterance"
	FrameDisconnect = "disconnect"
)

// Reply is sent back to the agent: errors, and the session outcome once the
// session has ended.
type Reply struct {
	Type       string `json:"type"`
	State      string `json:"state,omitempty"`
	Trigger    string `json:"trigger,omitempty"`
	Utterances int    `json:"utterances,omitempty"`
	Delivered  bool   `json:"delivered,omitempty"`
	Error      string `json:"error,omitempty"`
}

func registerSessionRoute(mux *http.ServeMux, d Deps) {
	mux.HandleFunc("GET /sessions/{room}/ws", func(w http.ResponseWriter, r *http.Request) {
		room := r.PathValue("room")
		c, err := d.Sessions.Open(room)
		switch {
		case errors.Is(err, session.ErrUnknownSession):
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		case errors.Is(err, session.ErrSessionClosed):
			writeJSONError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			d.Logger.Warn("session ws upgrade error", "room", room, "error", err)
			return
		}
		defer func() { _ = conn.Close() }()

		in := &ingress{conn: conn, ctl: c, dialer: d.Audio, logger: d.Logger.With("interview_id", c.InterviewID(), "room", room)}
		in.serve(r.Context())
	})
}

type ingress struct {
	conn   *websocket.Conn
	ctl    *session.Controller
	dialer AudioDialer
	logger *slog.Logger
	audio  session.AudioStream
}

func (in *ingress) serve(ctx context.Context) {
	defer func() {
		if in.audio != nil {
			in.audio.Stop()
		}
		// A socket that goes away without a disconnect frame is a
		// disconnect.
		if err := in.ctl.Disconnect(); err != nil && !errors.Is(err, session.ErrSessionClosed) {
			in.logger.Warn("disconnect on close failed", "error", err)
		}
	}()

	// Unblock the read loop when the session ends on its own, e.g. on the
	// completion marker.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-in.ctl.Done():
			_ = in.conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	for {
		kind, data, err := in.conn.ReadMessage()
		if err != nil {
			select {
			case <-in.ctl.Done():
				in.replyOutcome(ctx)
				return
			default:
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				in.logger.Info("session socket closed", "event", "ingress_closed", "error", err)
			}
			return
		}

		if kind == websocket.BinaryMessage {
			err = in.handleAudio(ctx, data)
		} else {
			err = in.handleFrame(data)
		}

		if errors.Is(err, session.ErrSessionClosed) {
			in.replyOutcome(ctx)
			return
		}
		if err != nil {
			_ = in.conn.WriteJSON(Reply{Type: "error", Error: err.Error()})
		}
	}
}

func (in *ingress) handleFrame(data []byte) error {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	switch f.Type {
	case FrameStart:
		return in.ctl.Start()
	case FrameUtterance:
		role, err := transcript.ParseRole(f.Role)
		if err != nil {
			return err
		}
		return in.ctl.Utterance(role, f.Text, f.Partial)
	case FrameDisconnect:
		if err := in.ctl.Disconnect(); err != nil {
			return err
		}
		return session.ErrSessionClosed
	default:
		return errors.New("unknown frame type " + f.Type)
	}
}

// handleAudio streams candidate audio to live transcription, opening the
// stream on the first frame.
func (in *ingress) handleAudio(ctx context.Context, data []byte) error {
	if in.dialer == nil {
		return errors.New("audio frames are not enabled")
	}
	select {
	case <-in.ctl.Done():
		return session.ErrSessionClosed
	default:
	}
	if in.audio == nil {
		stream, err := in.dialer.Dial(ctx, in.ctl, transcript.Candidate)
		if err != nil {
			return err
		}
		in.audio = stream
		in.logger.Info("audio stream opened", "event", "audio_stream_opened")
	}
	_, err := in.audio.Write(data)
	return err
}

func (in *ingress) replyOutcome(ctx context.Context) {
	waitCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	out, err := in.ctl.Wait(waitCtx)
	if err != nil {
		_ = in.conn.WriteJSON(Reply{Type: "error", Error: err.Error()})
		return
	}
	reply := Reply{
		Type:       "ended",
		State:      out.State.String(),
		Trigger:    string(out.Trigger),
		Utterances: out.Utterances,
		Delivered:  out.Delivered,
	}
	if out.Err != nil {
		reply.Error = out.Err.Error()
	}
	_ = in.conn.WriteJSON(reply)
	_ = in.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
