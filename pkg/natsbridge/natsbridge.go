// Package natsbridge connects the event bus to NATS. The forwarder
// republishes every bus event on <prefix>.events.<kind>; the listener
// accepts job submissions on <prefix>.jobs.submit.
package natsbridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/eventbus"
	"github.com/nadscan/nadscan/pkg/events"
	"github.com/nadscan/nadscan/pkg/jsonutil"
	"github.com/nadscan/nadscan/pkg/plugin"
)

// Conn is the subset of *nats.Conn the bridge uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Submitter enqueues jobs; *jobs.Manager satisfies it.
type Submitter interface {
	Enqueue(target string, tools []string, meta plugin.Meta) (string, error)
}

// Expander resolves tool selectors; *plugin.Registry satisfies it.
type Expander interface {
	Expand(selectors []string) ([]string, error)
}

// Submission is the body accepted on the submit subject.
type Submission struct {
	Target string      `json:"target"`
	Tools  []string    `json:"tools"`
	Meta   plugin.Meta `json:"meta,omitempty"`
}

// Reply answers a submission that carried a reply subject.
type Reply struct {
	JobID string `json:"job_id,omitempty"`
	Error string `json:"error,omitempty"`
}

// Bridge forwards events and listens for submissions.
type Bridge struct {
	conn   Conn
	prefix string
	log    logrus.FieldLogger
}

// New creates a Bridge publishing under prefix.
func New(conn Conn, prefix string, log logrus.FieldLogger) *Bridge {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = defaults.NATSSubjectPrefix
	}
	return &Bridge{conn: conn, prefix: prefix, log: log.WithField("component", "nats")}
}

// Connect dials url with reconnect handlers that log through log.
func Connect(url string, log logrus.FieldLogger) (*nats.Conn, error) {
	log = log.WithField("component", "nats")
	nc, err := nats.Connect(url,
		nats.Name(defaults.ToolName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("DISCONNECTED")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.WithField("url", c.ConnectedUrl()).Info("RECONNECTED")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// EventSubject is where events of kind are published.
func (b *Bridge) EventSubject(kind events.Kind) string {
	return b.prefix + ".events." + string(kind)
}

// SubmitSubject is where submissions are accepted.
func (b *Bridge) SubmitSubject() string {
	return b.prefix + ".jobs.submit"
}

// Forward publishes every event from sub until ctx ends or sub closes.
func (b *Bridge) Forward(ctx context.Context, sub *eventbus.Subscription) {
	eventbus.Consume(ctx, sub, func(e events.Event) {
		if err := b.Publish(e); err != nil {
			b.log.WithError(err).WithFields(logrus.Fields{
				"job_id": e.JobID(),
				"kind":   e.Kind(),
			}).Warn("PUBLISH failed")
		}
	})
}

// Publish sends one event.
func (b *Bridge) Publish(e events.Event) error {
	data, err := jsonutil.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.conn.Publish(b.EventSubject(e.Kind()), data)
}

// Listen subscribes to the submit subject. Each valid submission is
// expanded through exp (when non-nil) and enqueued on jobs.
func (b *Bridge) Listen(jobs Submitter, exp Expander) (*nats.Subscription, error) {
	sub, err := b.conn.Subscribe(b.SubmitSubject(), func(msg *nats.Msg) {
		b.handleSubmit(msg, jobs, exp)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", b.SubmitSubject(), err)
	}
	b.log.WithField("subject", b.SubmitSubject()).Info("LISTENING")
	return sub, nil
}

func (b *Bridge) handleSubmit(msg *nats.Msg, jobs Submitter, exp Expander) {
	id, err := b.submit(msg.Data, jobs, exp)
	if err != nil {
		b.log.WithError(err).Warn("SUBMISSION rejected")
	} else {
		b.log.WithField("job_id", id).Info("SUBMITTED")
	}
	if msg.Reply == "" {
		return
	}

	reply := Reply{JobID: id}
	if err != nil {
		reply = Reply{Error: err.Error()}
	}
	data, merr := jsonutil.Marshal(reply)
	if merr != nil {
		return
	}
	if perr := b.conn.Publish(msg.Reply, data); perr != nil {
		b.log.WithError(perr).Warn("REPLY failed")
	}
}

// ErrBadSubmission wraps malformed submission bodies.
var ErrBadSubmission = errors.New("invalid submission")

func (b *Bridge) submit(data []byte, jobs Submitter, exp Expander) (string, error) {
	var s Submission
	if err := jsonutil.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadSubmission, err)
	}
	tools := s.Tools
	if exp != nil {
		expanded, err := exp.Expand(tools)
		if err != nil {
			return "", err
		}
		tools = expanded
	}
	return jobs.Enqueue(strings.TrimSpace(s.Target), tools, s.Meta)
}
