package responder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"route-playback/internal/ingest"
	"route-playback/internal/service"
)

const (
	opPosition  = "position"
	opBatch     = "positions.batch"
	opAnalyze   = "routes.analyze"
	opValidate  = "routes.validate"
	replyBudget = 30 * time.Second
)

// Responder answers playback requests over NATS request/reply. Every
// subject is queue-subscribed so several instances share the load.
type Responder struct {
	nc      *nats.Conn
	svc     *service.Service
	prefix  string
	queue   string
	metrics ResponderMetrics
	subs    []*nats.Subscription
}

type ResponderMetrics interface {
	RequestInc(op string)
	ErrorInc(op string)
	SetConnected(connected bool)
}

// ErrorReply is sent for requests that could not be served.
type ErrorReply struct {
	Success bool                `json:"success"`
	Error   string              `json:"error"`
	Details []ingest.FieldIssue `json:"details,omitempty"`
}

func Connect(url string, svc *service.Service, prefix, queue string, m ResponderMetrics) (*Responder, error) {
	nc, err := nats.Connect(url,
		nats.Name("route-playback"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.SetConnected(false)
			}
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.SetConnected(true)
	}
	return New(nc, svc, prefix, queue, m), nil
}

func New(nc *nats.Conn, svc *service.Service, prefix, queue string, m ResponderMetrics) *Responder {
	return &Responder{nc: nc, svc: svc, prefix: subjectToken(prefix), queue: queue, metrics: m}
}

// Start subscribes every operation subject.
func (r *Responder) Start(ctx context.Context) error {
	for _, op := range []string{opPosition, opBatch, opAnalyze, opValidate} {
		subject := r.prefix + "." + op
		sub, err := r.nc.QueueSubscribe(subject, r.queue, func(msg *nats.Msg) {
			reply := r.Handle(ctx, op, msg.Data)
			if msg.Reply == "" {
				return
			}
			if err := msg.Respond(reply); err != nil {
				log.WithField("subject", subject).Printf("nats respond error: %v", err)
			}
		})
		if err != nil {
			r.Close()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		r.subs = append(r.subs, sub)
		log.Printf("nats listening on %s (queue %s)", subject, r.queue)
	}
	return nil
}

func (r *Responder) Close() {
	for _, s := range r.subs {
		_ = s.Unsubscribe()
	}
	r.subs = nil
	if r.nc != nil {
		r.nc.Drain()
		r.nc.Close()
	}
}

// Handle serves one request body for op and returns the JSON reply.
func (r *Responder) Handle(ctx context.Context, op string, data []byte) []byte {
	if r.metrics != nil {
		r.metrics.RequestInc(op)
	}
	ctx, cancel := context.WithTimeout(ctx, replyBudget)
	defer cancel()

	var (
		resp any
		err  error
	)
	switch op {
	case opPosition:
		var req ingest.PositionRequest
		if err = json.Unmarshal(data, &req); err == nil {
			resp, err = r.svc.Position(ctx, req)
		}
	case opBatch:
		var req ingest.BatchPositionsRequest
		if err = json.Unmarshal(data, &req); err == nil {
			resp, err = r.svc.Batch(ctx, req)
		}
	case opAnalyze:
		var req ingest.RouteRequest
		if err = json.Unmarshal(data, &req); err == nil {
			resp, err = r.svc.Analyze(req)
		}
	case opValidate:
		var req ingest.RouteRequest
		if err = json.Unmarshal(data, &req); err == nil {
			resp = r.svc.Validate(req)
		}
	default:
		err = fmt.Errorf("unknown operation %q", op)
	}

	if err != nil {
		if r.metrics != nil {
			r.metrics.ErrorInc(op)
		}
		return errorReply(err)
	}
	b, err := json.Marshal(resp)
	if err != nil {
		if r.metrics != nil {
			r.metrics.ErrorInc(op)
		}
		return errorReply(err)
	}
	return b
}

func errorReply(err error) []byte {
	reply := ErrorReply{Error: err.Error()}
	var verr *ingest.ValidationError
	if errors.As(err, &verr) {
		reply.Error = "validation failed"
		reply.Details = verr.Issues
	}
	b, _ := json.Marshal(reply)
	return b
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = strings.Trim(repl.Replace(s), ".")
	if s == "" {
		s = "playback"
	}
	return s
}
