package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nadscan/nadscan/pkg/events"
	"github.com/nadscan/nadscan/pkg/jsonutil"
	"github.com/nadscan/nadscan/pkg/plugin"
)

// invocation scopes a tool's emit callback to the call itself.
type invocation struct {
	mu     sync.Mutex
	closed bool
}

// invoke runs one tool through the uniform contract. It logs start and end,
// turns panics into errors and reports failures as log events before
// returning them to the caller for recording.
func (m *Manager) invoke(j *Job, name string) (any, error) {
	tool, ok := m.cfg.Tools.Lookup(name)
	if !ok {
		err := fmt.Errorf("%w: %s", plugin.ErrUnknownTool, name)
		m.emit(j, events.KindLog, events.Payload{"tool": name, "level": "error", "msg": err.Error()})
		return nil, err
	}

	m.emit(j, events.KindLog, events.Payload{"tool": name, "msg": "start"})

	inv := &invocation{}
	emit := func(msg any) {
		inv.mu.Lock()
		defer inv.mu.Unlock()
		if inv.closed {
			return
		}
		m.emit(j, events.KindLog, events.Payload{"tool": name, "msg": plainMessage(msg)})
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.ToolTimeout)
	defer cancel()

	out, err := m.call(ctx, j, name, tool, emit)

	inv.mu.Lock()
	inv.closed = true
	inv.mu.Unlock()

	if err != nil {
		m.emit(j, events.KindLog, events.Payload{"tool": name, "level": "error", "msg": err.Error()})
		m.log.WithFields(logrus.Fields{"job_id": j.id, "tool": name}).WithError(err).Warn("TOOL failed")
		return nil, err
	}
	m.emit(j, events.KindLog, events.Payload{"tool": name, "msg": "end"})
	return out, nil
}

func (m *Manager) call(ctx context.Context, j *Job, name string, tool plugin.Tool, emit plugin.EmitFunc) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.WithFields(logrus.Fields{
				"job_id": j.id,
				"tool":   name,
				"stack":  string(debug.Stack()),
			}).Error("TOOL panic")
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return tool.Run(ctx, j.target, emit, j.meta.Clone())
}

// plainMessage reduces an emitted value to JSON-shaped data that events
// can copy. Structs and pointers are converted so the published event
// holds no reference back into the tool.
func plainMessage(msg any) any {
	switch msg.(type) {
	case nil, string, bool, int, int64, float64,
		map[string]any, []any, []string, map[string]string, events.Payload:
		return msg
	}
	var out any
	if err := jsonutil.Convert(msg, &out); err != nil {
		return fmt.Sprint(msg)
	}
	return out
}
