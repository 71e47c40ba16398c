package messaging

import (
	"log"

	"pickpoint/config"
)

// Controller is the set of cell operations a supervisor may invoke remotely.
type Controller interface {
	StartBatch(captureIdx int) (string, error)
	Pause() error
	Resume() error
	Abort() error
}

// ControlSubscriber listens for inbound supervisor commands and routes them
// to the cell controller.
type ControlSubscriber struct {
	client *Client
	cfg    *config.Config
	ctrl   Controller
}

// NewControlSubscriber creates a new inbound control subscriber.
func NewControlSubscriber(client *Client, cfg *config.Config, ctrl Controller) *ControlSubscriber {
	return &ControlSubscriber{
		client: client,
		cfg:    cfg,
		ctrl:   ctrl,
	}
}

// Start subscribes to the control topic and begins processing requests.
func (s *ControlSubscriber) Start() error {
	return s.client.Subscribe(s.cfg.Messaging.ControlTopic, s.handleMessage)
}

func (s *ControlSubscriber) handleMessage(payload []byte) {
	env, err := DecodeEnvelope(payload)
	if err != nil {
		log.Printf("decode control envelope: %v", err)
		return
	}
	if env.Type != TypeCommandControl {
		return
	}

	var req ControlRequest
	if err := env.DecodePayload(&req); err != nil {
		log.Printf("decode control request: %v", err)
		return
	}

	// Filter: only process requests addressed to this cell.
	if req.CellID != s.cfg.CellID {
		return
	}

	switch req.Action {
	case "start_batch":
		if _, err := s.ctrl.StartBatch(req.CaptureIdx); err != nil {
			log.Printf("control start_batch: %v", err)
		}
	case "pause":
		if err := s.ctrl.Pause(); err != nil {
			log.Printf("control pause: %v", err)
		}
	case "resume":
		if err := s.ctrl.Resume(); err != nil {
			log.Printf("control resume: %v", err)
		}
	case "abort":
		if err := s.ctrl.Abort(); err != nil {
			log.Printf("control abort: %v", err)
		}
	default:
		log.Printf("control: unknown action %q", req.Action)
	}
}
